package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/attempt"
	"github.com/stemsi/exstem-portal/internal/client"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/logger"
	"golang.org/x/term"
)

func main() {
	examFlag := flag.String("exam", "", "exam ID to take")
	emailFlag := flag.String("email", "", "login email (ignored when PORTAL_TOKEN is set)")
	flag.Parse()

	examID, err := uuid.Parse(*examFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: -exam must be a valid exam ID")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Logs go to stderr so the countdown on stdout stays readable.
	log := logger.SetupWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	// ─── Credentials ───────────────────────────────────────────────────
	hc := &http.Client{Timeout: cfg.ClientTimeout}
	var creds client.CredentialProvider
	if cfg.PortalToken != "" {
		creds = client.StaticToken(cfg.PortalToken)
	} else {
		email := strings.TrimSpace(*emailFlag)
		if email == "" {
			fmt.Fprintln(os.Stderr, "Error: -email is required when PORTAL_TOKEN is not set")
			os.Exit(2)
		}
		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading password")
			os.Exit(1)
		}
		creds = client.NewLoginProvider(cfg.PortalURL, email, string(pw), hc)
	}

	portal := client.New(cfg.PortalURL, creds, client.WithHTTPClient(hc), client.WithLogger(log))

	// ─── Attempt ───────────────────────────────────────────────────────
	out := newRenderer(os.Stdout)
	slot := attempt.NewResultSlot()
	m := attempt.NewMachine(examID, portal,
		attempt.WithLogger(log),
		attempt.WithHandoff(slot),
		attempt.WithObserver(out.Observe),
		attempt.WithSubmitTimeout(cfg.ClientTimeout),
	)
	defer m.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		out.Println("Attempt abandoned.")
		m.Close()
	}()

	ctx := context.Background()
	if err := m.Load(ctx); err != nil {
		out.Println("Could not load the exam: " + describe(err))
		os.Exit(1)
	}
	out.Paper(m.Exam(), m.Questions())

	lines := readLines(os.Stdin)

	if !startLoop(ctx, m, out, lines) {
		return
	}
	out.Println(`Attempt started. Answer with "<number> <A-D>", "list" to review, "submit" to hand in.`)

	runCommands(ctx, m, out, lines)

	select {
	case <-slot.Ready():
		res, _ := slot.Result()
		out.Result(res)
	default:
		st := m.Status()
		if st.State == attempt.StateFailed {
			out.Println("Submission failed: " + describe(st.Err))
			os.Exit(1)
		}
	}
}

// startLoop waits for the student to confirm and retries a rejected start.
func startLoop(ctx context.Context, m *attempt.Machine, out *renderer, lines <-chan string) bool {
	for {
		out.Println("Press Enter to start the attempt (or type quit).")
		select {
		case <-m.Done():
			return false
		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "quit") {
				return false
			}
		}

		err := m.Start(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, attempt.ErrClosed) {
			return false
		}
		out.Println("Could not start: " + describe(err))
	}
}

// runCommands applies student input until the attempt ends.
func runCommands(ctx context.Context, m *attempt.Machine, out *renderer, lines <-chan string) {
	questions := m.Questions()
	for {
		select {
		case <-m.Done():
			return
		case line, ok := <-lines:
			if !ok {
				m.Close()
				return
			}
			cmd, err := parseCommand(line, len(questions))
			if err != nil {
				out.Println(err.Error())
				continue
			}
			switch cmd.kind {
			case cmdEmpty:
			case cmdList:
				out.Review(questions, m.Answer)
			case cmdQuit:
				m.Close()
				return
			case cmdSubmit:
				if err := m.Submit(ctx); err != nil {
					out.Println("Submit: " + describe(err))
				}
			case cmdAnswer:
				q := questions[cmd.index]
				if err := m.Select(q.ID, cmd.option); err != nil {
					out.Println(describe(err))
				}
			}
		}
	}
}

// readLines feeds stdin lines to a channel so input never blocks the timer.
func readLines(f *os.File) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// describe prefers the portal's message over the wrapped chain.
func describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
