package scrape

import (
	"errors"
	"testing"
)

func TestField(t *testing.T) {
	tests := []struct {
		name   string
		output string
		key    string
		want   string
	}{
		{"plain", "starting\n{\"response\": \"hello\"}\ndone\n", "response", "hello"},
		{"prefix", "{\"response\":\"ChatGPT said:  Paris.\"}", "response", "Paris."},
		{"prefix case", "  {\"response\":\"chatgpt SAID: ok\"}  ", "response", "ok"},
		{"first wins", "{\"response\":\"a\"}\n{\"response\":\"b\"}", "response", "a"},
		{"other key", "{\"html\":\"<p>x</p>\"}", "html", "<p>x</p>"},
		{"non string", "{\"response\":{\"n\":1}}", "response", `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Field(tt.output, tt.key)
			if err != nil {
				t.Fatalf("Field() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Field() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldErrors(t *testing.T) {
	if _, err := Field("nothing here\n{\"other\":1}", "response"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := Field("{\"response\": broken", "response"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want decode error", err)
	}
}
