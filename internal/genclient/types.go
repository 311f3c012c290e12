package genclient

const reasonNoCredential = "no credential"

// Kind tells the two Result variants apart.
type Kind int

const (
	KindUnavailable Kind = iota
	KindSuccess
)

// Result is the outcome of one generation attempt. A Success always carries non-empty Text;
// an Unavailable carries the Reason for logs and never reaches API callers.
type Result struct {
	Kind   Kind
	Text   string
	Reason string
}

func Success(text string) Result {
	return Result{Kind: KindSuccess, Text: text}
}

func Unavailable(reason string) Result {
	return Result{Kind: KindUnavailable, Reason: reason}
}

func (r Result) OK() bool {
	return r.Kind == KindSuccess && r.Text != ""
}

type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

func textBlock(text string) contentBlock {
	return contentBlock{Type: "text", Text: text}
}

type response struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}
