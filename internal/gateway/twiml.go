package gateway

import (
	"encoding/xml"
	"fmt"
)

// Voice prompt parameters matching the telephony transport contract: speech
// input, a 6-second silence window, and turns posted back to the continue
// endpoint.
const (
	gatherInput   = "speech"
	gatherTimeout = 6
	continuePath  = "/voice/continue"
)

// twimlResponse is the TwiML document root. Exactly one of the prompt shape
// (Gather with a nested Say) or the terminal shape (Say followed by Hangup)
// is populated.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
	Say     *twimlSay    `xml:"Say,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type twimlGather struct {
	Input   string   `xml:"input,attr"`
	Action  string   `xml:"action,attr"`
	Method  string   `xml:"method,attr"`
	Timeout int      `xml:"timeout,attr"`
	Say     twimlSay `xml:"Say"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

// promptTwiML renders a document that speaks text and gathers the caller's
// next utterance.
func promptTwiML(text string) ([]byte, error) {
	return renderTwiML(twimlResponse{
		Gather: &twimlGather{
			Input:   gatherInput,
			Action:  continuePath,
			Method:  "POST",
			Timeout: gatherTimeout,
			Say:     twimlSay{Text: text},
		},
	})
}

// hangupTwiML renders a document that speaks text and ends the call.
func hangupTwiML(text string) ([]byte, error) {
	return renderTwiML(twimlResponse{
		Say:    &twimlSay{Text: text},
		Hangup: &struct{}{},
	})
}

func renderTwiML(doc twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
