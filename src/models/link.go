package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LinkSession holds the tokens produced while linking an Item. It only lives
// in memory; the access token is redacted whenever the session is printed.
type LinkSession struct {
	PublicToken string
	AccessToken string
	ItemID      string
}

func (s LinkSession) String() string {
	return fmt.Sprintf("LinkSession(item=%s, access_token=%s)", s.ItemID, RedactToken(s.AccessToken))
}

// RedactToken keeps only a short prefix of a secret token.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "REDACTED"
	}
	return token[:12] + "…REDACTED"
}

type LinkResultKind int

const (
	LinkUnknown LinkResultKind = iota
	LinkSuccess
	LinkExit
)

func (k LinkResultKind) String() string {
	switch k {
	case LinkSuccess:
		return "success"
	case LinkExit:
		return "exit"
	default:
		return "unknown"
	}
}

type LinkError struct {
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
}

func (e *LinkError) String() string {
	if e == nil {
		return "no link error"
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorMessage)
}

// LinkResult is the outcome of a Link flow: Success carries the public token,
// Exit carries the error (if any) the user left with.
type LinkResult struct {
	Kind        LinkResultKind
	PublicToken string
	Error       *LinkError
	Status      string
}

// linkCallback covers the shapes emitted by the Link SDKs: onSuccess sends
// public_token + metadata, onExit sends error + metadata.status.
type linkCallback struct {
	Type           string          `json:"type"`
	PublicToken    string          `json:"public_token"`
	PublicTokenAlt string          `json:"publicToken"`
	Error          *LinkError      `json:"error"`
	Metadata       json.RawMessage `json:"metadata"`
}

type linkMetadata struct {
	Status string `json:"status"`
}

// DecodeLinkResult turns a Link callback payload into a LinkResult. It never
// fails: unreadable payloads come back as LinkUnknown.
func DecodeLinkResult(data []byte) LinkResult {
	var cb linkCallback
	if err := json.Unmarshal(data, &cb); err != nil {
		return LinkResult{Kind: LinkUnknown}
	}

	var meta linkMetadata
	if len(cb.Metadata) > 0 {
		_ = json.Unmarshal(cb.Metadata, &meta)
	}

	token := cb.PublicToken
	if token == "" {
		token = cb.PublicTokenAlt
	}

	switch strings.ToLower(cb.Type) {
	case "success":
		if token == "" {
			return LinkResult{Kind: LinkUnknown, Status: meta.Status}
		}
		return LinkResult{Kind: LinkSuccess, PublicToken: token, Status: meta.Status}
	case "exit":
		return LinkResult{Kind: LinkExit, Error: cb.Error, Status: meta.Status}
	}

	switch {
	case token != "":
		return LinkResult{Kind: LinkSuccess, PublicToken: token, Status: meta.Status}
	case cb.Error != nil || meta.Status != "":
		return LinkResult{Kind: LinkExit, Error: cb.Error, Status: meta.Status}
	default:
		return LinkResult{Kind: LinkUnknown}
	}
}
