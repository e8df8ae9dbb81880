package main

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/lyfcircle/circle/internal/protocol"
	"github.com/lyfcircle/circle/internal/survey"
)

type fakeSubmitter struct {
	calls int
	got   survey.FormData
	id    string
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, form survey.FormData) (string, error) {
	f.calls++
	f.got = form
	return f.id, f.err
}

type memIdentity struct{ id string }

func (m *memIdentity) SetUserID(_ context.Context, id string) error {
	m.id = id
	return nil
}

// script answers the default catalog. Trait numbers pick the left side of
// each of the six pairs.
var script = []string{
	"y",              // consent
	"mina", "s3cret", // credentials
	"Mina",                  // nickname
	"English", "Korean", "", // languages
	"SG",    // country
	"1", "", // hobbies: Reading
	"1", "", // times: 07:00
	"1 3 5 7 9 11", "", // traits
}

func newTestWizard(t *testing.T, sub survey.Submitter, ident survey.IdentitySetter, opts ...survey.Option) *survey.Wizard {
	t.Helper()
	w, err := survey.New(survey.DefaultQuestions(), sub, ident, opts...)
	if err != nil {
		t.Fatalf("survey.New error: %v", err)
	}
	return w
}

func TestRunWizardSubmitsCompleteForm(t *testing.T) {
	sub := &fakeSubmitter{id: "u1"}
	ident := &memIdentity{}
	w := newTestWizard(t, sub, ident)

	var out bytes.Buffer
	term := newTerminal(strings.NewReader(strings.Join(script, "\n")+"\n"), &out)
	res, err := runWizard(context.Background(), w, term)
	if err != nil {
		t.Fatalf("runWizard error: %v\n%s", err, out.String())
	}
	if !res.Submitted || res.Screen != survey.ScreenList || res.UserID != "u1" {
		t.Fatalf("unexpected outcome %+v", res)
	}
	if sub.calls != 1 {
		t.Fatalf("expected 1 submission, got %d", sub.calls)
	}
	if ident.id != "u1" {
		t.Errorf("identity not set, got %q", ident.id)
	}

	f := sub.got
	if f.Username != "mina" || f.Password != "s3cret" || f.Nickname != "Mina" || f.Country != "SG" {
		t.Errorf("unexpected text answers %+v", f)
	}
	if !reflect.DeepEqual(f.Langs, []string{"English", "Korean"}) {
		t.Errorf("unexpected langs %v", f.Langs)
	}
	if !reflect.DeepEqual(f.Hobbies, []string{"Reading"}) || !reflect.DeepEqual(f.Times, []string{"07:00"}) {
		t.Errorf("unexpected hobbies/times %v %v", f.Hobbies, f.Times)
	}
	if len(f.Characteristics) != 6 {
		t.Errorf("expected 6 traits, got %v", f.Characteristics)
	}
}

func TestRunWizardIncompleteStepStays(t *testing.T) {
	sub := &fakeSubmitter{id: "u1"}
	w := newTestWizard(t, sub, &memIdentity{})

	var out bytes.Buffer
	// Refuse consent, then quit.
	term := newTerminal(strings.NewReader("n\n:quit\n"), &out)
	_, err := runWizard(context.Background(), w, term)
	if !errors.Is(err, errAborted) {
		t.Fatalf("expected errAborted, got %v", err)
	}
	if w.Cursor() != 0 {
		t.Errorf("expected to stay on the first step, cursor %d", w.Cursor())
	}
	if !strings.Contains(out.String(), "Please complete this question first.") {
		t.Errorf("expected incomplete-step notice, got:\n%s", out.String())
	}
	if sub.calls != 0 {
		t.Error("nothing should have been submitted")
	}
}

func TestRunWizardBack(t *testing.T) {
	w := newTestWizard(t, &fakeSubmitter{id: "u1"}, &memIdentity{})

	var out bytes.Buffer
	term := newTerminal(strings.NewReader("y\n:back\n:quit\n"), &out)
	runWizard(context.Background(), w, term)
	if w.Cursor() != 0 {
		t.Errorf("expected cursor 0 after going back, got %d", w.Cursor())
	}
	if !w.Consent() {
		t.Error("consent lost when going back")
	}
}

func TestRunWizardEndOfInputAborts(t *testing.T) {
	w := newTestWizard(t, &fakeSubmitter{id: "u1"}, &memIdentity{})
	term := newTerminal(strings.NewReader("y\n"), &bytes.Buffer{})
	if _, err := runWizard(context.Background(), w, term); !errors.Is(err, errAborted) {
		t.Fatalf("expected errAborted, got %v", err)
	}
}

func TestRunWizardBlockedSubmissionRetries(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("503")}
	w := newTestWizard(t, sub, &memIdentity{}, survey.WithFailurePolicy(survey.BlockOnFailure))

	var out bytes.Buffer
	input := strings.Join(script, "\n") + "\n" + "\n" + ":quit\n"
	term := newTerminal(strings.NewReader(input), &out)
	_, err := runWizard(context.Background(), w, term)
	if !errors.Is(err, errAborted) {
		t.Fatalf("expected errAborted, got %v", err)
	}
	if sub.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", sub.calls)
	}
	if !strings.Contains(out.String(), "Registration failed") {
		t.Errorf("expected failure notice, got:\n%s", out.String())
	}
}

func TestFormatChatLine(t *testing.T) {
	cases := []struct {
		msg  protocol.ChatMessage
		want string
	}{
		{protocol.ChatMessage{Type: protocol.TypeChat, SenderID: "u2", Content: "hi"}, "<u2> hi"},
		{protocol.ChatMessage{Type: protocol.TypeChat, SenderID: "u1", Content: "yo"}, "<you> yo"},
		{protocol.ChatMessage{Type: protocol.TypeJoin, SenderID: "u3"}, "* u3 joined"},
		{protocol.ChatMessage{Type: protocol.TypeLeave, SenderID: "u3"}, "* u3 left"},
		{protocol.ChatMessage{Type: protocol.TypeChat, SenderID: "u2", Content: "x", Timestamp: "soon"}, "soon <u2> x"},
	}
	for _, c := range cases {
		if got := formatChatLine(c.msg, "u1"); got != c.want {
			t.Errorf("expected %q, got %q", c.want, got)
		}
	}
}

func TestTableWriterAligns(t *testing.T) {
	tw := NewTableWriter([]string{"ID", "Name"})
	tw.AddRow([]string{"1", "Yoga"})
	tw.AddRow([]string{"22", "Cycling"})

	var buf bytes.Buffer
	tw.Print(&buf)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), buf.String())
	}
	width := len([]rune(lines[0]))
	for i, l := range lines {
		if len([]rune(l)) != width {
			t.Errorf("line %d has width %d, expected %d: %q", i, len([]rune(l)), width, l)
		}
	}
}
