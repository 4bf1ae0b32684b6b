// Command operator talks to a running ground station over its HTTP API.
//
//	operator [-server URL] status
//	operator [-server URL] cutdown -yes
//	operator [-server URL] events [-limit N]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/skylink/internal/httputil"
	"github.com/banshee-data/skylink/internal/version"
)

const defaultServer = "http://localhost:8080"

var errUsage = errors.New("usage: operator [-server URL] status | cutdown -yes | events [-limit N] | version")

func main() {
	client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
	if err := run(os.Args[1:], client, os.Stdout); err != nil {
		log.SetFlags(0)
		log.Fatal(err)
	}
}

func run(args []string, client httputil.HTTPClient, out io.Writer) error {
	fs := flag.NewFlagSet("operator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	server := fs.String("server", defaultServer, "Ground station base URL")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	base := strings.TrimRight(*server, "/")

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "status":
		return status(client, base, out)
	case "cutdown":
		return sendCutdown(client, base, rest, out)
	case "events":
		return events(client, base, rest, out)
	case "version":
		fmt.Fprintln(out, version.String("operator"))
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func status(client httputil.HTTPClient, base string, out io.Writer) error {
	var data map[string]interface{}
	if err := httputil.DoJSON(client, http.MethodGet, base+"/api/data", &data); err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}

	fmt.Fprintf(out, "link:      %v (%.1fs since heartbeat)\n", data["Heartbeat_Status"], asFloat(data["Seconds_Since_Heartbeat"]))
	fmt.Fprintf(out, "records:   %v received, %v packets pending\n", data["Records_Received"], data["Pending_Packets"])
	fmt.Fprintf(out, "cutdowns:  %v sent\n", data["Cutdowns_Sent"])

	skip := map[string]bool{
		"Heartbeat_Status": true, "Seconds_Since_Heartbeat": true, "Records_Received": true,
		"Pending_Packets": true, "Cutdowns_Sent": true, "Radio": true, "Units": true,
	}
	var names []string
	for k := range data {
		if !skip[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(out, "  %-26s %v\n", k, data[k])
	}
	return nil
}

func sendCutdown(client httputil.HTTPClient, base string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cutdown", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "Confirm the cutdown")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !*yes {
		return errors.New("cutdown is irreversible: re-run with -yes to send it")
	}

	var resp struct {
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := httputil.DoJSON(client, http.MethodPost, base+"/api/cutdown", &resp); err != nil {
		return fmt.Errorf("send cutdown: %w", err)
	}
	fmt.Fprintf(out, "%s (request %s)\n", resp.Message, resp.RequestID)
	return nil
}

type linkEvent struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	To   string    `json:"to"`
}

type cutdownEvent struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	State  string    `json:"state"`
	Source string    `json:"source"`
	Detail string    `json:"detail"`
}

func events(client httputil.HTTPClient, base string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "Number of events of each kind")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	var resp struct {
		Link    []linkEvent    `json:"link"`
		Cutdown []cutdownEvent `json:"cutdown"`
	}
	url := fmt.Sprintf("%s/api/events?limit=%d", base, *limit)
	if err := httputil.DoJSON(client, http.MethodGet, url, &resp); err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	fmt.Fprintln(out, "link:")
	for _, e := range resp.Link {
		fmt.Fprintf(out, "  %s  %s -> %s\n", e.At.Format(time.RFC3339), e.From, e.To)
	}
	fmt.Fprintln(out, "cutdown:")
	for _, e := range resp.Cutdown {
		fmt.Fprintf(out, "  %s  %-10s %s %s\n", e.At.Format(time.RFC3339), e.Kind, e.State, e.Detail)
	}
	return nil
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
