// Package memory implements the per-session conversation store: bounded
// rolling buffers of exchanged messages and recent capability invocations.
package memory

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	flowagent "github.com/frostholm/flowagent"
)

const (
	// DefaultMaxMessages is the message ring capacity.
	DefaultMaxMessages = 10
	// DefaultMaxToolUsages is the tool-usage ring capacity.
	DefaultMaxToolUsages = 5
	// relevantUsageCount is how many recent usages RelevantContext includes.
	relevantUsageCount = 3
)

type storedMessage struct {
	role      string
	content   string
	timestamp time.Time
}

// ToolUsage is one recorded capability invocation.
type ToolUsage struct {
	ID         string
	Capability string
	Operation  string
	Args       []interface{}
	Result     string
	Timestamp  time.Time
}

// ConversationMemory is the bounded rolling store of one session. All
// mutation is append-then-trim: the oldest entry is dropped on overflow.
// Safe for concurrent use; each session owns its own instance.
type ConversationMemory struct {
	mu            sync.Mutex
	messages      []storedMessage
	toolUsages    []ToolUsage
	userInfo      map[string]string
	maxMessages   int
	maxToolUsages int
	entropy       *rand.Rand
}

// Option configures a ConversationMemory.
type Option func(*ConversationMemory)

// WithMaxMessages overrides the message ring capacity.
func WithMaxMessages(n int) Option {
	return func(m *ConversationMemory) {
		if n > 0 {
			m.maxMessages = n
		}
	}
}

// WithMaxToolUsages overrides the tool-usage ring capacity.
func WithMaxToolUsages(n int) Option {
	return func(m *ConversationMemory) {
		if n > 0 {
			m.maxToolUsages = n
		}
	}
}

// New creates an empty conversation memory.
func New(options ...Option) *ConversationMemory {
	m := &ConversationMemory{
		userInfo:      make(map[string]string),
		maxMessages:   DefaultMaxMessages,
		maxToolUsages: DefaultMaxToolUsages,
		entropy:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// AddMessage appends a message, dropping the oldest when over capacity.
func (m *ConversationMemory) AddMessage(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, storedMessage{role: role, content: content, timestamp: time.Now()})
	if len(m.messages) > m.maxMessages {
		m.messages = m.messages[len(m.messages)-m.maxMessages:]
	}
}

// AddToolUsage records a capability invocation, dropping the oldest when
// over capacity. Records carry ULID identifiers so they sort by time.
func (m *ConversationMemory) AddToolUsage(capability, operation string, args []interface{}, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.toolUsages = append(m.toolUsages, ToolUsage{
		ID:         ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		Capability: capability,
		Operation:  operation,
		Args:       args,
		Result:     result,
		Timestamp:  now,
	})
	if len(m.toolUsages) > m.maxToolUsages {
		m.toolUsages = m.toolUsages[len(m.toolUsages)-m.maxToolUsages:]
	}
}

// SetUserInfo stores a user fact included in RelevantContext summaries.
func (m *ConversationMemory) SetUserInfo(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userInfo[key] = value
}

// History returns up to maxItems of the most recent messages, oldest-first.
// maxItems <= 0 returns everything retained.
func (m *ConversationMemory) History(maxItems int) []flowagent.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages
	if maxItems > 0 && len(msgs) > maxItems {
		msgs = msgs[len(msgs)-maxItems:]
	}
	out := make([]flowagent.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = flowagent.Message{Role: msg.role, Content: msg.content}
	}
	return out
}

// ToolUsages returns a copy of the retained usage records, oldest-first.
func (m *ConversationMemory) ToolUsages() []ToolUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolUsage, len(m.toolUsages))
	copy(out, m.toolUsages)
	return out
}

// RelevantContext concatenates a user-info summary (if any) with the last
// few tool-usage records. Returns "" when nothing is present.
func (m *ConversationMemory) RelevantContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sections []string

	if len(m.userInfo) > 0 {
		keys := make([]string, 0, len(m.userInfo))
		for k := range m.userInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s: %s", k, m.userInfo[k])
		}
		sections = append(sections, "User information: "+strings.Join(pairs, ", "))
	}

	if len(m.toolUsages) > 0 {
		recent := m.toolUsages
		if len(recent) > relevantUsageCount {
			recent = recent[len(recent)-relevantUsageCount:]
		}
		lines := make([]string, len(recent))
		for i, usage := range recent {
			argStrs := make([]string, len(usage.Args))
			for j, a := range usage.Args {
				argStrs[j] = fmt.Sprintf("%v", a)
			}
			lines[i] = fmt.Sprintf("- Used %s.%s with args: %s",
				usage.Capability, usage.Operation, strings.Join(argStrs, ", "))
		}
		sections = append(sections, "Recent tool usages:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n")
}

// Script patterns checked in order. Japanese kana must be checked before
// the CJK block because kanji overlap it.
var scriptPatterns = []struct {
	code    string
	pattern *regexp.Regexp
}{
	{"ru", regexp.MustCompile(`[а-яА-Я]`)},
	{"ja", regexp.MustCompile(`[\x{3040}-\x{30ff}]`)},
	{"zh", regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)},
	{"ko", regexp.MustCompile(`[\x{ac00}-\x{d7a3}]`)},
	{"ar", regexp.MustCompile(`[\x{0600}-\x{06FF}]`)},
}

// DetectLanguage inspects the most recent user message and returns its
// language code from a script heuristic, defaulting to "en" for Latin text.
// Returns "" when no user message exists.
func (m *ConversationMemory) DetectLanguage() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role != "user" {
			continue
		}
		content := m.messages[i].content
		for _, script := range scriptPatterns {
			if script.pattern.MatchString(content) {
				return script.code
			}
		}
		return "en"
	}
	return ""
}
