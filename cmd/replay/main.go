// Command replay streams a transcript file to a running orchestrator as
// timed fragments and prints the events that come back. Useful for demoing
// overlays and debriefs without a live transcription source.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaekop/ContextLens/internal/event"
)

func main() {
	url := flag.String("url", "ws://localhost:8000/ws/session", "orchestrator websocket URL")
	file := flag.String("file", "", "transcript file, one fragment per line (\"speaker: text\" or bare text)")
	sessionID := flag.String("session", "", "session id (server generates one when empty)")
	language := flag.String("language", "", "session language hint")
	persist := flag.Bool("persist", false, "opt in to session persistence")
	interval := flag.Duration("interval", time.Second, "delay between fragments")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --file ./samples/standup.txt [--url ws://...]")
		os.Exit(1)
	}

	lines, err := readLines(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read transcript:", err)
		os.Exit(1)
	}
	if len(lines) == 0 {
		fmt.Fprintln(os.Stderr, "no fragments in", *file)
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	start := map[string]interface{}{
		"type":      "start",
		"sessionId": *sessionID,
		"language":  *language,
	}
	if *persist {
		start["saveMode"] = "persist"
	}
	if err := conn.WriteJSON(start); err != nil {
		fmt.Fprintln(os.Stderr, "send start:", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go readEvents(conn, done)

	ms := float64(interval.Milliseconds())
	for i, line := range lines {
		speaker, text := splitSpeaker(line)
		frag := map[string]interface{}{
			"type":  "transcript",
			"text":  text,
			"t0_ms": float64(i) * ms,
			"t1_ms": float64(i)*ms + ms*0.9,
		}
		if speaker != "" {
			frag["speaker"] = speaker
		}
		if err := conn.WriteJSON(frag); err != nil {
			fmt.Fprintln(os.Stderr, "send fragment:", err)
			os.Exit(1)
		}
		time.Sleep(*interval)
	}

	if err := conn.WriteJSON(map[string]interface{}{"type": "end"}); err != nil {
		fmt.Fprintln(os.Stderr, "send end:", err)
		os.Exit(1)
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "timed out waiting for the debrief")
		os.Exit(1)
	}
}

// readEvents prints incoming events until the debrief arrives or the
// connection drops.
func readEvents(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev event.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "started":
			fmt.Printf("session %s\n\n", ev.SessionID)
		case event.TypeOverlay:
			fmt.Printf("overlay  %-40s  tags=%s conf=%.2f\n",
				ev.TopicLine, strings.Join(ev.IntentTags, ","), ev.Confidence)
		case event.TypeTool:
			fmt.Printf("tool     %s: %s\n", ev.Tool, ev.Suggestion)
		case event.TypeVision:
			if ev.Scene != nil {
				fmt.Printf("vision   %s (people=%d, degraded=%v)\n",
					ev.Scene.Environment, ev.Scene.PeopleCount, ev.Scene.Degraded)
			}
		case event.TypeError:
			fmt.Fprintf(os.Stderr, "error    %s: %s\n", ev.Code, ev.Message)
		case event.TypeDebrief:
			fmt.Println("\ndebrief:")
			for _, b := range ev.Bullets {
				fmt.Println("  -", b)
			}
			if len(ev.Suggestions) > 0 {
				fmt.Println("suggestions:")
				for _, s := range ev.Suggestions {
					fmt.Println("  -", s)
				}
			}
			for _, n := range ev.UncertaintyNotes {
				fmt.Println("note:", n)
			}
			return
		}
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// splitSpeaker peels a leading "name: " off a transcript line. The prefix
// must be a single word to count as a speaker label.
func splitSpeaker(line string) (speaker, text string) {
	before, after, found := strings.Cut(line, ": ")
	if !found || before == "" || strings.ContainsAny(before, " \t") {
		return "", line
	}
	return before, after
}
