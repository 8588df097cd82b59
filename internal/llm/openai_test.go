package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAIServer answers every request with handler and returns a provider
// pointed at it.
func openAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newOpenAICompatible("test-key", srv.URL+"/v1", "gpt-4o-mini", nil)
}

func completion(message map[string]any, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 31, "completion_tokens": 12, "total_tokens": 43},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestOpenAIProvider_StructuredOutput(t *testing.T) {
	var body map[string]any
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, completion(map[string]any{
			"role":    "assistant",
			"content": `{"title":"Photosynthesis","duration":45,"objectives":["explain light reactions"]}`,
		}, "stop"))
	})

	resp, err := p.Generate(context.Background(), Request{
		System:   "You write lessons.",
		Messages: []Message{{Role: RoleUser, Content: "Outline a lesson."}},
		Schema:   lessonSchema(),
	})
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 31, OutputTokens: 12, TotalTokens: 43}, resp.Usage)
	assert.Equal(t, "end", resp.StopReason)

	format, _ := body["response_format"].(map[string]any)
	require.NotNil(t, format)
	assert.Equal(t, "json_schema", format["type"])
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAIProvider_FreeTextSkipsValidation(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion(map[string]any{"role": "assistant", "content": "plain words"}, "length"))
	})
	resp, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "plain words", resp.Text)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestOpenAIProvider_TruncatedStructuredOutput(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion(map[string]any{"role": "assistant", "content": `{"title":"Pho`}, "length"))
	})
	_, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Schema:   lessonSchema(),
	})
	var mt *ErrMaxTokensExceeded
	require.ErrorAs(t, err, &mt)
	assert.Equal(t, `{"title":"Pho`, mt.Content)
}

func TestOpenAIProvider_ContentFilter(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion(map[string]any{"role": "assistant", "content": ""}, "content_filter"))
	})
	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var inv *ErrInvalidResponse
	assert.ErrorAs(t, err, &inv)
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusTooManyRequests, func(t *testing.T, err error) {
			var rl *ErrRateLimit
			assert.ErrorAs(t, err, &rl)
		}},
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			var up *ErrUpstream
			require.ErrorAs(t, err, &up)
			assert.Equal(t, http.StatusUnauthorized, up.StatusCode)
		}},
		{http.StatusBadGateway, func(t *testing.T, err error) {
			var un *ErrProviderUnavailable
			assert.ErrorAs(t, err, &un)
		}},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{
					"error": map[string]any{"type": "test_error", "message": "nope"},
				})
			})
			_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOpenAIProvider_RejectsMedia(t *testing.T) {
	p := newOpenAICompatible("k", "", "gpt-4o", nil)
	_, err := p.Generate(context.Background(), Request{Media: []MediaPart{{URI: "https://example.com/v.mp4"}}})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.Error(t, err)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o", BaseURL: "https://proxy.example.com/v1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.ModelID())
}

func TestBuildOpenAIMessages(t *testing.T) {
	msgs := buildOpenAIMessages("sys", []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)

	assert.Len(t, buildOpenAIMessages("", []Message{{Role: RoleUser, Content: "q"}}), 1)
}

func TestOpenAIChat_FunctionCallIsAcknowledged(t *testing.T) {
	var turns []map[string]any
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		turns = append(turns, body)
		writeJSON(w, http.StatusOK, completion(map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []map[string]any{{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "generate_course",
					"arguments": `{"user_request":"  a course on robotics "}`,
				},
			}},
		}, "tool_calls"))
	})

	session, err := p.StartChat(context.Background(), ChatConfig{
		System: "You build courses.",
		Tools: []FunctionDeclaration{{
			Name: "generate_course",
			Parameters: &Schema{Name: "args", Definition: map[string]any{
				"type":       "object",
				"properties": map[string]any{"user_request": map[string]any{"type": "string"}},
			}},
		}},
	})
	require.NoError(t, err)

	reply, err := session.Send(context.Background(), "robotics please")
	require.NoError(t, err)
	require.Equal(t, KindFunctionCall, reply.Kind)
	assert.Equal(t, "a course on robotics", reply.FunctionCalls[0].StringArg("user_request"))
	assert.Contains(t, turns[0], "tools")

	_, err = session.Send(context.Background(), "thanks")
	require.NoError(t, err)
	// system, user, assistant call, tool ack, user
	msgs, _ := turns[1]["messages"].([]any)
	assert.Len(t, msgs, 5)
}

func TestOpenAIChat_BadArguments(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion(map[string]any{
			"role": "assistant",
			"tool_calls": []map[string]any{{
				"id": "call_1", "type": "function",
				"function": map[string]any{"name": "generate_course", "arguments": "{not json"},
			}},
		}, "tool_calls"))
	})
	session, err := p.StartChat(context.Background(), ChatConfig{})
	require.NoError(t, err)
	_, err = session.Send(context.Background(), "hi")
	var inv *ErrInvalidResponse
	assert.ErrorAs(t, err, &inv)
}

func TestOpenAIChat_Stream(t *testing.T) {
	var requests int
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests > 1 {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			msgs, _ := body["messages"].([]any)
			// user, streamed assistant reply, user
			if len(msgs) != 3 {
				http.Error(w, fmt.Sprintf("got %d messages", len(msgs)), http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Wel", "come"} {
			chunk, _ := json.Marshal(map[string]any{
				"id": "chatcmpl-1", "object": "chat.completion.chunk", "created": 1700000000, "model": "gpt-4o-mini",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	session, err := p.StartChat(context.Background(), ChatConfig{})
	require.NoError(t, err)

	collect := func(text string) string {
		var sb strings.Builder
		for chunk, err := range session.SendStream(context.Background(), text) {
			require.NoError(t, err)
			sb.WriteString(chunk)
		}
		return sb.String()
	}
	assert.Equal(t, "Welcome", collect("hi"))
	assert.Equal(t, "Welcome", collect("again"))
}
