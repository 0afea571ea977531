package fallback

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukerupert/tareas/internal/provider"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func ok(name, v string, calls *[]string) Strategy[string] {
	return Strategy[string]{Name: name, Run: func(ctx context.Context) (string, error) {
		*calls = append(*calls, name)
		return v, nil
	}}
}

func fail(name string, err error, calls *[]string) Strategy[string] {
	return Strategy[string]{Name: name, Run: func(ctx context.Context) (string, error) {
		*calls = append(*calls, name)
		return "", err
	}}
}

func TestExecuteFirstSuccessWins(t *testing.T) {
	var calls []string
	var buf bytes.Buffer
	c := Chain[string]{Name: "study", Logger: testLogger(&buf), Strategies: []Strategy[string]{
		ok("groq", "a", &calls),
		ok("ollama", "b", &calls),
	}}

	v, rep, err := c.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v != "a" || rep.Provider != "groq" || rep.State != Succeeded {
		t.Errorf("v = %q, report = %+v", v, rep)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %q, want only groq", calls)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestExecuteFallsBackWithOneLoggedFailure(t *testing.T) {
	errs := []error{
		&provider.Error{Provider: "a", Kind: provider.KindRateLimited, StatusCode: 429, Err: errors.New("slow down")},
		&provider.Error{Provider: "a", Kind: provider.KindMalformed, Err: errors.New("garbage")},
		errors.New("connection refused"),
	}
	for _, aErr := range errs {
		t.Run(provider.KindOf(aErr).String(), func(t *testing.T) {
			var calls []string
			var buf bytes.Buffer
			c := Chain[string]{Name: "mindmap", Logger: testLogger(&buf), Strategies: []Strategy[string]{
				fail("a", aErr, &calls),
				ok("b", "from b", &calls),
			}}

			v, rep, err := c.Execute(context.Background())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if v != "from b" {
				t.Errorf("v = %q, want %q", v, "from b")
			}
			if rep.Provider != "b" || len(rep.Attempts) != 2 {
				t.Errorf("report = %+v", rep)
			}
			if rep.Attempts[0].Kind != provider.KindOf(aErr) {
				t.Errorf("attempt kind = %v, want %v", rep.Attempts[0].Kind, provider.KindOf(aErr))
			}

			out := buf.String()
			if n := strings.Count(out, "falling back"); n != 1 {
				t.Errorf("fallback log lines = %d, want 1:\n%s", n, out)
			}
			if !strings.Contains(out, "provider=a") {
				t.Errorf("log does not name failing provider:\n%s", out)
			}
			if strings.Contains(out, "level=ERROR") {
				t.Errorf("unexpected error log:\n%s", out)
			}
		})
	}
}

func TestExecuteExhausted(t *testing.T) {
	var calls []string
	var buf bytes.Buffer
	c := Chain[string]{Name: "tutor", Logger: testLogger(&buf), Strategies: []Strategy[string]{
		fail("groq", errors.New("first"), &calls),
		fail("gemini", errors.New("second"), &calls),
		fail("ollama", errors.New("Ollama is not running"), &calls),
	}}

	_, rep, err := c.Execute(context.Background())
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("err = %v, want *ExhaustedError", err)
	}
	if err.Error() != "Ollama is not running" {
		t.Errorf("message = %q, want last error", err.Error())
	}
	if rep.State != Exhausted || rep.Provider != "" {
		t.Errorf("report = %+v", rep)
	}
	if strings.Join(calls, ",") != "groq,gemini,ollama" {
		t.Errorf("calls = %q", calls)
	}
	out := buf.String()
	if strings.Count(out, "falling back") != 2 || strings.Count(out, "level=ERROR") != 1 {
		t.Errorf("log output:\n%s", out)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	c := Chain[string]{Name: "exam", Logger: testLogger(&bytes.Buffer{}), Strategies: []Strategy[string]{
		{Name: "ollama", Run: func(ctx context.Context) (string, error) {
			calls = append(calls, "ollama")
			cancel()
			return "", ctx.Err()
		}},
		ok("groq", "never", &calls),
	}}

	_, _, err := c.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %q, want only ollama", calls)
	}
}

func TestExecuteEmptyChain(t *testing.T) {
	_, rep, err := Chain[int]{Name: "none", Logger: testLogger(&bytes.Buffer{})}.Execute(context.Background())
	var ex *ExhaustedError
	if !errors.As(err, &ex) || rep.State != Exhausted {
		t.Errorf("err = %v, report = %+v", err, rep)
	}
}

func TestExecuteIsStateless(t *testing.T) {
	n := 0
	c := Chain[int]{Name: "assist", Logger: testLogger(&bytes.Buffer{}), Strategies: []Strategy[int]{
		{Name: "gemini", Run: func(ctx context.Context) (int, error) {
			n++
			if n == 1 {
				return 0, errors.New("flaky")
			}
			return 1, nil
		}},
		{Name: "groq", Run: func(ctx context.Context) (int, error) { return 2, nil }},
	}}

	first, _, _ := c.Execute(context.Background())
	second, rep, _ := c.Execute(context.Background())
	if first != 2 || second != 1 || rep.Provider != "gemini" {
		t.Errorf("first = %d, second = %d (%s), want 2 then 1 from gemini", first, second, rep.Provider)
	}
}

type stubGenerator struct {
	name string
	text string
	err  error
	got  provider.Request
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) GenerateText(ctx context.Context, req provider.Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func TestGeneratorsSkipsNil(t *testing.T) {
	groq := &stubGenerator{name: "groq", err: errors.New("down")}
	ollama := &stubGenerator{name: "ollama", text: "local"}
	req := provider.Request{Prompt: "p", Temperature: 0.5}

	strategies := Generators(req, groq, nil, ollama)
	if len(strategies) != 2 {
		t.Fatalf("strategies = %d, want 2", len(strategies))
	}

	v, rep, err := Chain[string]{Name: "study", Strategies: strategies, Logger: testLogger(&bytes.Buffer{})}.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v != "local" || rep.Provider != "ollama" {
		t.Errorf("v = %q from %q", v, rep.Provider)
	}
	if groq.got != req || ollama.got != req {
		t.Errorf("requests = %+v / %+v, want %+v", groq.got, ollama.got, req)
	}
}
