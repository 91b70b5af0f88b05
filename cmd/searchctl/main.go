// searchctl is the operator CLI: it talks to a running searchd over HTTP and
// can also run an offline determinism check that builds the same dataset
// twice with different worker counts and compares index fingerprints.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/searchstack/textsearchd/internal/builder"
	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/scanner"
	"github.com/searchstack/textsearchd/internal/tokenizer"
)

const (
	exitOK          = 0
	exitBadUsage    = 1
	exitMissingArg  = 2
	exitVerifyFail  = 3
	exitNetworkFail = 10
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("searchctl", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "searchd base URL")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage()
		return exitBadUsage
	}

	client := &http.Client{Timeout: 30 * time.Second}

	switch rest[0] {
	case "status":
		return getJSON(client, *addr+"/status")
	case "search":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "search requires a query argument")
			return exitMissingArg
		}
		topk := 20
		if len(rest) >= 3 {
			if v, err := strconv.Atoi(rest[2]); err == nil && v >= 0 {
				topk = v
			}
		}
		q := url.Values{"q": {rest[1]}, "topk": {strconv.Itoa(topk)}}
		return getJSON(client, *addr+"/search?"+q.Encode())
	case "build":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "build requires a dataset path argument")
			return exitMissingArg
		}
		threads := 0
		if len(rest) >= 3 {
			if v, err := strconv.Atoi(rest[2]); err == nil {
				threads = v
			}
		}
		incremental := len(rest) >= 4 && rest[3] == "incremental"
		body := map[string]any{
			"dataset_path": rest[1],
			"threads":      threads,
			"incremental":  incremental,
		}
		return postJSON(client, *addr+"/build", body)
	case "scheduler":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "scheduler requires on|off")
			return exitMissingArg
		}
		enabled := rest[1] == "on"
		intervalS := 30
		if len(rest) >= 3 {
			if v, err := strconv.Atoi(rest[2]); err == nil && v > 0 {
				intervalS = v
			}
		}
		body := map[string]any{"enabled": enabled, "interval_s": intervalS}
		return postJSON(client, *addr+"/scheduler", body)
	case "verify":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "verify requires a dataset path argument")
			return exitMissingArg
		}
		return verify(rest[1])
	default:
		usage()
		return exitBadUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: searchctl [-addr URL] <command>

commands:
  status                          show service status
  search <query> [topk]           run a query
  build <dataset> [threads] [incremental]
                                  start a build pass
  scheduler on|off [interval_s]   toggle the periodic rebuilder
  verify <dataset>                build twice locally and compare fingerprints`)
}

// verify builds the dataset twice in-process with different worker counts and
// compares the resulting index fingerprints.
func verify(dataset string) int {
	fpA, err := buildFingerprint(dataset, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: build with 1 worker failed: %v\n", err)
		return exitVerifyFail
	}
	fpB, err := buildFingerprint(dataset, 4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: build with 4 workers failed: %v\n", err)
		return exitVerifyFail
	}
	if fpA != fpB {
		fmt.Fprintf(os.Stderr, "verify: FINGERPRINT MISMATCH\n  workers=1: %s\n  workers=4: %s\n", fpA, fpB)
		return exitVerifyFail
	}
	fmt.Printf("verify: ok %s\n", fpA)
	return exitOK
}

func buildFingerprint(dataset string, workers int) (string, error) {
	ix := index.New(index.DefaultShardCount)
	store := docstore.New()
	tok := tokenizer.New(tokenizer.DefaultConfig())
	sc := scanner.New(scanner.DefaultConfig())
	b := builder.New(ix, store, tok, sc)

	res, err := b.BuildFromDirectory(dataset, workers)
	if err != nil {
		return "", err
	}
	if res.Errors > 0 {
		fmt.Fprintf(os.Stderr, "verify: %d file errors during build with %d workers\n", res.Errors, workers)
	}
	return ix.Fingerprint(store.PathFor), nil
}

func getJSON(client *http.Client, url string) int {
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		return exitNetworkFail
	}
	defer resp.Body.Close()
	return printBody(resp.Body)
}

func postJSON(client *http.Client, url string, body any) int {
	data, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding request failed: %v\n", err)
		return exitBadUsage
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		return exitNetworkFail
	}
	defer resp.Body.Close()
	return printBody(resp.Body)
}

func printBody(r io.Reader) int {
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading response failed: %v\n", err)
		return exitNetworkFail
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		os.Stdout.Write(data)
	} else {
		pretty.WriteTo(os.Stdout)
	}
	fmt.Println()
	return exitOK
}
