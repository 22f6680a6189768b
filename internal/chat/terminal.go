package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"groqchat/internal/config"
)

const terminalHelp = `Commands:
  /models              list available models
  /model <id>          switch model
  /temperature <0-2>   set temperature
  /top-p <0-1>         set top-p
  /settings            show current settings
  /help                show this help
  /quit                exit`

// Options override the relay-provided defaults.
type Options struct {
	Model       string
	Temperature *float64
	TopP        *float64
	NoColor     bool
}

// Terminal is an interactive line-based chat front end.
type Terminal struct {
	client *Client
	opts   Options
	log    *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	userLabel  *color.Color
	aiLabel    *color.Color
	headingFmt *color.Color
	errFmt     *color.Color

	titles sync.WaitGroup
	models []string
}

// NewTerminal builds a terminal front end writing to out.
func NewTerminal(client *Client, out io.Writer, opts Options, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Terminal{
		client:     client,
		opts:       opts,
		log:        logger,
		out:        out,
		userLabel:  color.New(color.FgGreen, color.Bold),
		aiLabel:    color.New(color.FgCyan, color.Bold),
		headingFmt: color.New(color.FgYellow, color.Bold),
		errFmt:     color.New(color.FgRed),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{t.userLabel, t.aiLabel, t.headingFmt, t.errFmt} {
			c.DisableColor()
		}
	}
	return t
}

// Start loads defaults and the model list and opens a session. The model
// list is fetched before any input is accepted.
func (t *Terminal) Start(ctx context.Context) *Session {
	defaults := UIDefaults{
		FallbackModel: config.DefaultModel,
		Temperature:   config.DefaultTemperature,
		TopP:          config.DefaultTopP,
	}
	if d, err := t.client.Defaults(ctx); err != nil {
		t.log.Warn("could not load relay defaults", "err", err)
	} else {
		defaults = d
	}

	ids, err := t.client.Models(ctx)
	if err != nil {
		t.log.Warn("could not load models", "err", err)
	}
	t.models = ids

	settings := Settings{Model: DefaultModel(ids, defaults.FallbackModel)}.
		WithTemperature(defaults.Temperature).
		WithTopP(defaults.TopP)
	if t.opts.Model != "" {
		settings = settings.WithModel(t.opts.Model)
	}
	if t.opts.Temperature != nil {
		settings = settings.WithTemperature(*t.opts.Temperature)
	}
	if t.opts.TopP != nil {
		settings = settings.WithTopP(*t.opts.TopP)
	}

	return NewSession(settings)
}

// Run reads lines from in until EOF, /quit or ctx cancellation. Pending
// title requests are awaited before it returns.
func (t *Terminal) Run(ctx context.Context, in io.Reader) error {
	session := t.Start(ctx)
	defer t.titles.Wait()

	t.printHeading(session)
	t.printf("model %s, temperature %.2f, top-p %.2f (type /help for commands)\n",
		session.Settings().Model, session.Settings().Temperature, session.Settings().TopP)

	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.write(func(w io.Writer) { t.userLabel.Fprint(w, "User: ") })
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "/") {
			if quit := t.command(session, line); quit {
				return nil
			}
			continue
		}
		t.send(ctx, session, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	t.printf("\n")
	return nil
}

func (t *Terminal) send(ctx context.Context, session *Session, text string) {
	turn, err := session.Submit(text)
	if errors.Is(err, ErrEmptyInput) {
		return
	}
	if err != nil {
		t.printError(err)
		return
	}

	t.write(func(w io.Writer) { t.aiLabel.Fprint(w, "AI: ") })
	_, err = t.client.Chat(ctx, turn, func(chunk string) {
		_ = session.Token(chunk)
		t.printf("%s", chunk)
	})
	t.printf("\n")

	if err != nil {
		_ = session.Fail(err)
		t.printError(err)
		return
	}

	conversation, fetchTitle, err := session.Complete()
	if err != nil {
		t.printError(err)
		return
	}
	if !fetchTitle {
		return
	}

	t.titles.Add(1)
	go func() {
		defer t.titles.Done()
		title, err := t.client.Title(ctx, conversation)
		if err != nil {
			t.log.Warn("title generation failed", "err", err)
			return
		}
		session.SetTitle(title)
		t.printHeading(session)
	}()
}

// command handles a slash command and reports whether the terminal should exit.
func (t *Terminal) command(session *Session, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		t.printf("%s\n", terminalHelp)
	case "/models":
		if len(t.models) == 0 {
			t.printf("no models available\n")
		}
		for _, id := range t.models {
			t.printf("  %s\n", id)
		}
	case "/model":
		if arg == "" {
			t.printError(errors.New("usage: /model <id>"))
			return false
		}
		s := session.UpdateSettings(func(s Settings) Settings { return s.WithModel(arg) })
		t.printf("model set to %s\n", s.Model)
	case "/temperature", "/top-p":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			t.printError(fmt.Errorf("usage: %s <number>", name))
			return false
		}
		s := session.UpdateSettings(func(s Settings) Settings {
			if name == "/temperature" {
				return s.WithTemperature(v)
			}
			return s.WithTopP(v)
		})
		t.printf("temperature %.2f, top-p %.2f\n", s.Temperature, s.TopP)
	case "/settings":
		s := session.Settings()
		t.printf("model %s, temperature %.2f, top-p %.2f\n", s.Model, s.Temperature, s.TopP)
	default:
		t.printError(fmt.Errorf("unknown command %s", name))
	}
	return false
}

func (t *Terminal) printHeading(session *Session) {
	t.write(func(w io.Writer) { t.headingFmt.Fprintf(w, "# %s\n", session.Heading()) })
}

func (t *Terminal) printError(err error) {
	t.write(func(w io.Writer) { t.errFmt.Fprintf(w, "error: %v\n", err) })
}

func (t *Terminal) printf(format string, args ...any) {
	t.write(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func (t *Terminal) write(fn func(io.Writer)) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fn(t.out)
}
