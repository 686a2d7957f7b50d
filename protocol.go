package mcp

// Info identifies a server or client implementation by name and version.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Role represents the role in a conversation (user or assistant).
type Role string

// Role values accepted in content annotations and prompt messages.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType represents the type of content in messages and tool results.
type ContentType string

// ContentType values for the content taxonomy.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeResource ContentType = "resource"
)

// Annotations inform the client how an object is used or displayed.
type Annotations struct {
	// Audience describes who the intended consumer of this object is.
	// It may include multiple entries.
	Audience []Role `json:"audience,omitempty"`
	// Priority describes how important this data is, from 0 (optional)
	// to 1 (effectively required). Serialized verbatim.
	Priority *float64 `json:"priority,omitempty"`
}

// Content represents one element of a content list. The populated fields
// depend on Type:
//   - ContentTypeText: Text
//   - ContentTypeImage, ContentTypeAudio: Data (base64) and MimeType
//   - ContentTypeResource: Resource
type Content struct {
	Type        ContentType  `json:"type"`
	Annotations *Annotations `json:"annotations,omitempty"`

	Text string `json:"text,omitempty"`

	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	Resource *ResourceContents `json:"resource,omitempty"`
}

// ResourceContents represents either text or blob resource contents.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Resource describes an addressable content item fetched by URI.
type Resource struct {
	Annotations *Annotations `json:"annotations,omitempty"`
	URI         string       `json:"uri"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
}

// ResourceTemplate defines a template for generating resource URIs.
type ResourceTemplate struct {
	Annotations *Annotations `json:"annotations,omitempty"`
	URITemplate string       `json:"uriTemplate"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
}

// Root represents a client-advertised filesystem or URI namespace the
// server may operate within.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// PromptMessage is a single message of a prompt response.
type PromptMessage struct {
	Role    Role    `json:"role,omitempty"`
	Content Content `json:"content"`
}

// LogLevel is one of the eight MCP logging severity names.
type LogLevel string

// The MCP logging levels, in increasing severity.
const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

var logLevels = map[LogLevel]struct{}{
	LogLevelDebug: {}, LogLevelInfo: {}, LogLevelNotice: {}, LogLevelWarning: {},
	LogLevelError: {}, LogLevelCritical: {}, LogLevelAlert: {}, LogLevelEmergency: {},
}

// ValidLogLevel reports whether level is one of the eight MCP level names.
func ValidLogLevel(level LogLevel) bool {
	_, ok := logLevels[level]
	return ok
}

// ProgressParams carries a progress update for a long-running operation.
// When Total is non-zero, completion percentage can be calculated as
// (Progress/Total)*100.
type ProgressParams struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ProgressFunc receives progress notifications routed by progress token.
// The argument is the full params object of the notification.
type ProgressFunc func(params map[string]any)

// ClientCapabilities advertises what the connected client supports.
type ClientCapabilities struct {
	Roots    *RootsCapability    `json:"roots,omitempty"`
	Sampling *SamplingCapability `json:"sampling,omitempty"`
}

// RootsCapability describes the client's roots support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability describes the client's sampling support.
type SamplingCapability struct{}

// ServerCapabilities is the capability advertisement produced at
// initialize time from the configured handlers.
type ServerCapabilities struct {
	Logging     *LoggingCapability     `json:"logging,omitempty"`
	Completions *CompletionsCapability `json:"completions,omitempty"`
	Prompts     *PromptsCapability     `json:"prompts,omitempty"`
	Resources   *ResourcesCapability   `json:"resources,omitempty"`
	Tools       *ToolsCapability       `json:"tools,omitempty"`
}

// LoggingCapability describes the server's logging support.
type LoggingCapability struct{}

// CompletionsCapability describes the server's completion support.
type CompletionsCapability struct{}

// PromptsCapability describes the server's prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability describes the server's resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

// ToolsCapability describes the server's tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// SamplingMessage is a message in a sampling conversation history.
type SamplingMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ModelHint suggests a model by name for sampling.
type ModelHint struct {
	Name string `json:"name"`
}

// ModelPreferences guides the client's model selection for sampling.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	IntelligencePriority float64     `json:"intelligencePriority,omitempty"`
	SpeedPriority        float64     `json:"speedPriority,omitempty"`
}

// SamplingRequest describes a server-initiated LLM completion to be
// executed by the client.
type SamplingRequest struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	MaxTokens        int               `json:"maxTokens,omitempty"`
}

// SamplingResult is the client's answer to a sampling/createMessage request.
type SamplingResult struct {
	Role       Role    `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model,omitempty"`
	StopReason string  `json:"stopReason,omitempty"`
}

// CompletionRef identifies what is being completed in a completion request.
type CompletionRef struct {
	// Type is either "ref/prompt" or "ref/resource".
	Type string `json:"type"`
	// Name contains the prompt name when Type is "ref/prompt".
	Name string `json:"name,omitempty"`
	// URI contains the resource template URI when Type is "ref/resource".
	URI string `json:"uri,omitempty"`
}

// CompletionArgument is the argument a completion request asks about.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Protocol versions accepted at initialize.
const (
	ProtocolVersion20241105 = "2024-11-05"
	ProtocolVersion20250326 = "2025-03-26"
	ProtocolVersion20250618 = "2025-06-18"
)

var supportedProtocolVersions = []string{
	ProtocolVersion20241105,
	ProtocolVersion20250326,
	ProtocolVersion20250618,
}

// JSONRPCVersion specifies the JSON-RPC protocol version used on the wire.
const JSONRPCVersion = "2.0"

// Request method names of the MCP surface.
const (
	MethodInitialize             = "initialize"
	MethodPing                   = "ping"
	MethodPromptsList            = "prompts/list"
	MethodPromptsGet             = "prompts/get"
	MethodResourcesList          = "resources/list"
	MethodResourcesRead          = "resources/read"
	MethodResourcesSubscribe     = "resources/subscribe"
	MethodResourcesUnsubscribe   = "resources/unsubscribe"
	MethodResourcesTemplatesList = "resources/templates/list"
	MethodToolsList              = "tools/list"
	MethodToolsCall              = "tools/call"
	MethodCompletionComplete     = "completion/complete"
	MethodLoggingSetLevel        = "logging/setLevel"

	MethodRootsList             = "roots/list"
	MethodSamplingCreateMessage = "sampling/createMessage"
)

// Notification method names.
const (
	MethodNotificationsInitialized          = "notifications/initialized"
	MethodNotificationsCancelled            = "notifications/cancelled"
	MethodNotificationsProgress             = "notifications/progress"
	MethodNotificationsRootsListChanged     = "notifications/roots/list_changed"
	MethodNotificationsToolsListChanged     = "notifications/tools/list_changed"
	MethodNotificationsPromptsListChanged   = "notifications/prompts/list_changed"
	MethodNotificationsResourcesListChanged = "notifications/resources/list_changed"
	MethodNotificationsResourcesUpdated     = "notifications/resources/updated"
	MethodNotificationsMessage              = "notifications/message"
)

// CompletionRef.Type values.
const (
	CompletionRefPrompt   = "ref/prompt"
	CompletionRefResource = "ref/resource"
)

// methodClientResponse is the pseudo-method client response envelopes are
// routed to internally. The name cannot collide with a real method because
// the wire parser never produces it from a method field.
const methodClientResponse = "client-response"

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Info               `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type cancelledParams struct {
	RequestID any    `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

type resourceUpdatedParams struct {
	URI string `json:"uri"`
}

type logMessageParams struct {
	Level  LogLevel `json:"level"`
	Logger string   `json:"logger,omitempty"`
	Data   any      `json:"data,omitempty"`
}
