package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Terminal client for the query API. Keeps one server-side session per run
// and prints answers with their citations.

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type citation struct {
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
	File    string `json:"file"`
}

type queryResponse struct {
	SessionID  string     `json:"session_id"`
	Answer     string     `json:"answer"`
	Citations  []citation `json:"citations"`
	Confidence string     `json:"confidence"`
	Mode       string     `json:"mode"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "query API base URL")
	flag.Parse()

	client := &http.Client{Timeout: 180 * time.Second}
	sessionID := ""

	fmt.Println("corpusqa chat. Type a question, 'reset' to start over, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return
		case line == "reset":
			if sessionID != "" {
				req, _ := http.NewRequest(http.MethodDelete, *addr+"/v1/session/"+sessionID, nil)
				if res, err := client.Do(req); err == nil {
					res.Body.Close()
				}
				sessionID = ""
			}
			fmt.Println("session cleared")
			continue
		}

		resp, err := ask(client, *addr, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = resp.SessionID

		fmt.Println(resp.Answer)
		if len(resp.Citations) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, c := range resp.Citations {
				fmt.Printf("  [%d] %s (%s)\n", c.Ordinal, c.Title, c.File)
			}
		}
		fmt.Printf("(mode=%s confidence=%s)\n", resp.Mode, resp.Confidence)
	}
}

func ask(client *http.Client, addr, sessionID, question string) (queryResponse, error) {
	payload, err := json.Marshal(queryRequest{Question: question, SessionID: sessionID})
	if err != nil {
		return queryResponse{}, err
	}

	res, err := client.Post(addr+"/v1/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		return queryResponse{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return queryResponse{}, fmt.Errorf("server returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var resp queryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return queryResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
