package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	flag.StringVar(&serverAddr, "server", "http://localhost:8089", "admin API base URL")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	command := os.Args[1]

	switch command {
	case "create-index":
		handleCreateIndex(os.Args[2:])
	case "drop-index":
		handleDropIndex(os.Args[2:])
	case "list-indexes":
		handleListIndexes(os.Args[2:])
	case "health":
		handleHealth(os.Args[2:])
	case "version":
		fmt.Printf("vecann-cli version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

func handleCreateIndex(args []string) {
	fs := flag.NewFlagSet("create-index", flag.ExitOnError)
	var (
		table          = fs.String("table", "", "table name (required)")
		column         = fs.String("column", "", "column name (required)")
		kind           = fs.String("kind", "hnsw", "index kind: hnsw or flat")
		metric         = fs.String("metric", "cosine", "distance metric: cosine, l2, dot, or hamming")
		m              = fs.Int("m", 16, "HNSW M parameter")
		efConstruction = fs.Int("ef-construction", 200, "HNSW efConstruction parameter")
		efSearch       = fs.Int("ef-search", 50, "HNSW efSearch parameter")
		quantization   = fs.String("quantization", "none", "quantization: none, scalar8, or binary")
		dimension      = fs.Int("dimension", 0, "vector dimension (required for flat indexes)")
	)
	fs.StringVar(&serverAddr, "server", serverAddr, "admin API base URL")
	fs.Parse(args)

	if *table == "" || *column == "" {
		fmt.Println("error: -table and -column are required")
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]interface{}{
		"table":           *table,
		"column":          *column,
		"kind":            *kind,
		"metric":          *metric,
		"m":               *m,
		"ef_construction": *efConstruction,
		"ef_search":       *efSearch,
		"quantization":    *quantization,
		"dimension":       *dimension,
	}

	var resp map[string]interface{}
	if err := doRequest(http.MethodPost, "/v1/indexes", body, &resp); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("index created: %s.%s (key: %v)\n", *table, *column, resp["key"])
}

func handleDropIndex(args []string) {
	fs := flag.NewFlagSet("drop-index", flag.ExitOnError)
	var (
		table  = fs.String("table", "", "table name (required)")
		column = fs.String("column", "", "column name (required)")
	)
	fs.StringVar(&serverAddr, "server", serverAddr, "admin API base URL")
	fs.Parse(args)

	if *table == "" || *column == "" {
		fmt.Println("error: -table and -column are required")
		fs.Usage()
		os.Exit(1)
	}

	path := fmt.Sprintf("/v1/indexes/%s/%s", *table, *column)
	var resp map[string]interface{}
	if err := doRequest(http.MethodDelete, path, nil, &resp); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("index dropped: %s.%s\n", *table, *column)
}

func handleListIndexes(args []string) {
	fs := flag.NewFlagSet("list-indexes", flag.ExitOnError)
	fs.StringVar(&serverAddr, "server", serverAddr, "admin API base URL")
	fs.Parse(args)

	var rows []map[string]interface{}
	if err := doRequest(http.MethodGet, "/v1/indexes", nil, &rows); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	if len(rows) == 0 {
		fmt.Println("no indexes registered")
		return
	}

	fmt.Printf("%-20s %-20s %-12s %-12s\n", "TABLE", "COLUMN", "STATE", "MEMORY")
	for _, row := range rows {
		fmt.Printf("%-20v %-20v %-12v %-12v\n", row["table"], row["column"], row["state"], row["memory_bytes"])
	}
}

func handleHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	fs.StringVar(&serverAddr, "server", serverAddr, "admin API base URL")
	fs.Parse(args)

	var resp map[string]interface{}
	if err := doRequest(http.MethodGet, "/v1/health", nil, &resp); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("status: %v\n", resp["status"])
}

func doRequest(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, serverAddr+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting admin API at %s: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errBody map[string]interface{}
		if json.Unmarshal(data, &errBody) == nil && errBody["error"] != nil {
			return fmt.Errorf("%v (status %d)", errBody["error"], resp.StatusCode)
		}
		return fmt.Errorf("admin API returned status %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func showUsage() {
	fmt.Println(`vecann-cli - admin client for a vecann index registry

Usage:
  vecann-cli <command> [options]

Commands:
  create-index    register a new vector index on a table column
  drop-index      permanently remove a registered index and its descriptor
  list-indexes    list all registered indexes
  health          check admin API health
  version         show version
  help            show this help message

Options accepted by every command except version and help:
  -server URL       admin API base URL (default: http://localhost:8089)

Requests time out after 30s; there is no flag to change this.

Examples:

  # create an HNSW index over a cosine-distance embedding column
  vecann-cli create-index -table docs -column embedding -kind hnsw \
    -metric cosine -m 16 -ef-construction 200 -ef-search 50

  # create a flat index for exact search over a small table
  vecann-cli create-index -table docs -column embedding -kind flat \
    -metric l2 -dimension 768

  # list registered indexes
  vecann-cli list-indexes

  # drop an index
  vecann-cli drop-index -table docs -column embedding

  # check server health
  vecann-cli health`)
}
