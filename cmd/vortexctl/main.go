package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vortexl2/pkg/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `vortexctl talks to a local vortexd management API.

Usage:
  vortexctl status
  vortexctl peer get
  vortexctl peer set -pub <key> [-psk <key>] [-allowed <cidr,...>]
  vortexctl forward list
  vortexctl forward add -local <port> -host <host> -port <port>
  vortexctl forward del -local <port>
  vortexctl audit
  vortexctl watch
  vortexctl version

Env: VORTEX_ADDR (default http://127.0.0.1:8088), AUTH_TOKEN
`)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}

	c := &client{
		base:  getenv("VORTEX_ADDR", "http://127.0.0.1:8088"),
		token: os.Getenv("AUTH_TOKEN"),
		http:  &http.Client{Timeout: 30 * time.Second},
	}

	switch os.Args[1] {
	case "status":
		c.getJSON("/api/v1/status")
	case "audit":
		c.getJSON("/api/v1/audit")
	case "watch":
		c.watch()
	case "version":
		log.Printf("vortexctl version=%s", version.Build)
		c.getJSON("/api/v1/version")
	case "peer":
		peerCmd(c, os.Args[2:])
	case "forward":
		forwardCmd(c, os.Args[2:])
	default:
		usage()
	}
}

func peerCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "get":
		c.getJSON("/api/v1/peer")
	case "set":
		fs := flag.NewFlagSet("peer set", flag.ExitOnError)
		pub := fs.String("pub", "", "peer public key (required)")
		psk := fs.String("psk", "", "preshared key (optional)")
		allowed := fs.String("allowed", "", "comma separated allowed networks (optional)")
		keepalive := fs.Int("keepalive", 0, "persistent keepalive seconds (optional)")
		_ = fs.Parse(args[1:])
		if *pub == "" {
			log.Fatal("peer set: -pub is required")
		}
		body := map[string]interface{}{"publicKey": *pub}
		if *psk != "" {
			body["presharedKey"] = *psk
		}
		if *allowed != "" {
			body["allowedNetworks"] = splitAndTrim(*allowed)
		}
		if *keepalive > 0 {
			body["keepaliveSeconds"] = *keepalive
		}
		c.postJSON("/api/v1/peer", body)
	default:
		usage()
	}
}

func forwardCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "list":
		c.getJSON("/api/v1/forwards")
	case "add":
		fs := flag.NewFlagSet("forward add", flag.ExitOnError)
		local := fs.Int("local", 0, "local port to listen on (required)")
		host := fs.String("host", "", "target host across the tunnel (required)")
		port := fs.Int("port", 0, "target port (required)")
		_ = fs.Parse(args[1:])
		if *local == 0 || *host == "" || *port == 0 {
			log.Fatal("forward add: -local, -host and -port are required")
		}
		c.postJSON("/api/v1/forwards", map[string]interface{}{
			"localPort":  *local,
			"targetHost": *host,
			"targetPort": *port,
		})
	case "del":
		fs := flag.NewFlagSet("forward del", flag.ExitOnError)
		local := fs.Int("local", 0, "local port to remove (required)")
		_ = fs.Parse(args[1:])
		if *local == 0 {
			log.Fatal("forward del: -local is required")
		}
		c.do(http.MethodDelete, "/api/v1/forwards?localPort="+strconv.Itoa(*local), nil)
	default:
		usage()
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) getJSON(path string) {
	c.do(http.MethodGet, path, nil)
}

func (c *client) postJSON(path string, body interface{}) {
	b, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal request: %v", err)
	}
	c.do(http.MethodPost, path, bytes.NewReader(b))
}

func (c *client) do(method, path string, body io.Reader) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("node returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	// Pretty-print when the body is JSON, raw otherwise.
	var out bytes.Buffer
	if json.Indent(&out, data, "", "  ") == nil {
		fmt.Println(out.String())
	} else {
		fmt.Println(strings.TrimSpace(string(data)))
	}
}

// watch streams node events until interrupted, reconnecting on drops.
func (c *client) watch() {
	u, err := url.Parse(c.base)
	if err != nil {
		log.Fatalf("bad address %q: %v", c.base, err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/ws"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	for {
		conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			log.Printf("ws dial failed: %v (status=%d), retrying in 5s", err, status)
			time.Sleep(5 * time.Second)
			continue
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			fmt.Println(strings.TrimSpace(string(data)))
		}
		conn.Close()
		log.Printf("ws disconnected, retrying in 5s")
		time.Sleep(5 * time.Second)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
