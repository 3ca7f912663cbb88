package gateway

import (
	"strings"
	"testing"
)

func TestPromptTwiML(t *testing.T) {
	t.Parallel()

	body, err := promptTwiML("What's your name?")
	if err != nil {
		t.Fatalf("promptTwiML: %v", err)
	}
	doc := string(body)

	for _, want := range []string{
		`<Gather input="speech" action="/voice/continue" method="POST" timeout="6">`,
		`<Say>What&#39;s your name?</Say>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "<Hangup>") {
		t.Errorf("prompt document contains Hangup:\n%s", doc)
	}
}

func TestHangupTwiML(t *testing.T) {
	t.Parallel()

	body, err := hangupTwiML("Goodbye!")
	if err != nil {
		t.Fatalf("hangupTwiML: %v", err)
	}
	doc := string(body)

	if !strings.Contains(doc, "<Say>Goodbye!</Say>") {
		t.Errorf("document missing Say:\n%s", doc)
	}
	if !strings.Contains(doc, "<Hangup>") {
		t.Errorf("document missing Hangup:\n%s", doc)
	}
	if strings.Contains(doc, "<Gather") {
		t.Errorf("terminal document contains Gather:\n%s", doc)
	}
}

func TestTwiML_EscapesMarkup(t *testing.T) {
	t.Parallel()

	body, err := promptTwiML(`Pickup: <12 & Baker>`)
	if err != nil {
		t.Fatalf("promptTwiML: %v", err)
	}
	doc := string(body)
	if strings.Contains(doc, "<12") {
		t.Errorf("markup not escaped:\n%s", doc)
	}
	if !strings.Contains(doc, "&lt;12 &amp; Baker&gt;") {
		t.Errorf("expected escaped text in:\n%s", doc)
	}
}
