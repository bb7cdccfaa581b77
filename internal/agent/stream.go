package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RecordType enumerates the line-delimited record types an AgentSession's
// stdout stream is known to carry, per the structured-stream contract: a
// session-init record, one or more assistant-text records (each a sequence
// of content blocks), and a single terminal result record.
type RecordType string

const (
	RecordSessionInit RecordType = "system"
	RecordAssistant   RecordType = "assistant"
	RecordUser        RecordType = "user"
	RecordResult      RecordType = "result"
)

// BlockType enumerates content block types within an assistant-text record.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// TokenUsage holds cumulative token counts as reported by the terminal
// result record.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// Total returns the sum of input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StreamRecord is a single high-level record extracted from the NDJSON
// stream emitted on an AgentSession's stdout.
type StreamRecord struct {
	Type       RecordType
	Block      BlockType
	Content    string
	ToolName   string
	ToolInput  json.RawMessage
	Usage      *TokenUsage
	StopReason string
	SessionID  string
}

// ParseResult aggregates every record recovered from one stream, plus the
// running totals an AgentSession needs to drive its status and token-usage
// signals.
type ParseResult struct {
	Records     []StreamRecord
	TextContent string
	TotalUsage  *TokenUsage
	StopReason  string
	SessionID   string
}

// maxThinkingBytes bounds how much "thinking" content is retained per block
// so a single verbose turn cannot blow the in-memory line buffer.
const maxThinkingBytes = 50000

type rawContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Content  interface{}     `json:"content,omitempty"`
}

type rawRecord struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type rawMessage struct {
	Content []rawContentBlock `json:"content"`
}

type rawResult struct {
	Content    []rawContentBlock `json:"content"`
	Usage      *TokenUsage       `json:"usage,omitempty"`
	StopReason string            `json:"stop_reason,omitempty"`
}

// ParseStream parses one AgentSession's full NDJSON stdout buffer.
// Malformed lines are forwarded verbatim as unknown-record text, per the
// AgentSession contract: unknown lines are not dropped.
func ParseStream(data []byte) *ParseResult {
	result := &ParseResult{}
	var textParts [][]byte

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var raw rawRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			// Unknown line: forwarded verbatim as plain text content.
			result.Records = append(result.Records, StreamRecord{Type: RecordAssistant, Block: BlockText, Content: string(line)})
			textParts = append(textParts, line)
			continue
		}

		switch RecordType(raw.Type) {
		case RecordAssistant, RecordUser:
			var msg rawMessage
			if err := json.Unmarshal(raw.Message, &msg); err != nil {
				continue
			}
			extractBlocks(RecordType(raw.Type), msg.Content, result, &textParts)

		case RecordResult:
			var res rawResult
			if err := json.Unmarshal(raw.Result, &res); err != nil {
				continue
			}
			extractBlocks(RecordResult, res.Content, result, &textParts)
			if res.Usage != nil {
				result.TotalUsage = res.Usage
			}
			if res.StopReason != "" {
				result.StopReason = res.StopReason
			}

		case RecordSessionInit:
			result.SessionID = raw.SessionID
			result.Records = append(result.Records, StreamRecord{
				Type:      RecordSessionInit,
				SessionID: raw.SessionID,
			})
		}
	}

	result.TextContent = string(bytes.Join(textParts, []byte("\n")))
	return result
}

func extractBlocks(recType RecordType, blocks []rawContentBlock, result *ParseResult, textParts *[][]byte) {
	for _, block := range blocks {
		switch BlockType(block.Type) {
		case BlockText:
			result.Records = append(result.Records, StreamRecord{Type: recType, Block: BlockText, Content: block.Text})
			if block.Text != "" {
				*textParts = append(*textParts, []byte(block.Text))
			}

		case BlockThinking:
			content := block.Thinking
			if len(content) > maxThinkingBytes {
				content = content[:maxThinkingBytes]
			}
			result.Records = append(result.Records, StreamRecord{Type: recType, Block: BlockThinking, Content: content})

		case BlockToolUse:
			result.Records = append(result.Records, StreamRecord{
				Type:      recType,
				Block:     BlockToolUse,
				ToolName:  block.Name,
				ToolInput: block.Input,
			})

		case BlockToolResult:
			content := blockContentToString(block.Content)
			result.Records = append(result.Records, StreamRecord{Type: recType, Block: BlockToolResult, Content: content})
			if content != "" {
				*textParts = append(*textParts, []byte(content))
			}
		}
	}
}

// AssistantText returns only the text blocks from assistant records,
// excluding tool output — the text an agent actually "said".
func (pr *ParseResult) AssistantText() string {
	var parts []string
	for _, rec := range pr.Records {
		if rec.Type == RecordAssistant && rec.Block == BlockText && rec.Content != "" {
			parts = append(parts, rec.Content)
		}
	}
	return strings.Join(parts, "\n")
}

func blockContentToString(content interface{}) string {
	if content == nil {
		return ""
	}
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if text, ok := m["text"].(string); ok && text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
