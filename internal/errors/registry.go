package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

const docBase = "https://vango.dev/docs/web/errors/"

// templates maps error codes to their registered templates.
var templates = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (R001-R019)
	// ============================================

	"R001": {
		Category:   CategoryProtocol,
		Message:    "Unknown node id",
		Detail:     "An edit referenced a node id that is not registered. The producer and the document no longer agree on which nodes exist.",
		Suggestion: "Reset the renderer and re-render from scratch.",
		DocURL:     docBase + "R001",
	},
	"R002": {
		Category:   CategoryProtocol,
		Message:    "Node kind mismatch",
		Detail:     "An edit applied to a node of the wrong kind, such as setting text on an element or appending children to a text node.",
		Suggestion: "Reset the renderer and re-render from scratch.",
		DocURL:     docBase + "R002",
	},
	"R003": {
		Category:   CategoryProtocol,
		Message:    "Node id already in use",
		Detail:     "A create edit named an id that is still live. Ids can only be reused after the node holding them has been removed.",
		Suggestion: "Remove the old node before reusing its id.",
		DocURL:     docBase + "R003",
	},
	"R004": {
		Category: CategoryProtocol,
		Message:  "Reserved node id",
		Detail:   "Id 0 names the mount root and cannot be created, moved or removed. Ids must also stay below the arena limit.",
		DocURL:   docBase + "R004",
	},
	"R005": {
		Category: CategoryProtocol,
		Message:  "Node is not attached",
		Detail:   "InsertBefore, InsertAfter, Replace and Remove need a node that has a parent.",
		DocURL:   docBase + "R005",
	},
	"R006": {
		Category: CategoryProtocol,
		Message:  "Edit would create a cycle",
		Detail:   "An edit tried to place a node inside itself or one of its descendants.",
		DocURL:   docBase + "R006",
	},
	"R007": {
		Category: CategoryProtocol,
		Message:  "Template error",
		Detail:   "A template was not found, was invalid, or a load named a root index or path that does not exist.",
		DocURL:   docBase + "R007",
	},
	"R008": {
		Category:   CategoryProtocol,
		Message:    "Tree is desynchronized",
		Detail:     "An earlier batch failed part way. Every later batch is refused until the renderer is reset.",
		Suggestion: "Call Reset and have the producer render the whole tree again.",
		DocURL:     docBase + "R008",
	},
	"R009": {
		Category: CategoryProtocol,
		Message:  "Malformed batch",
		Detail:   "A batch could not be decoded from its wire form.",
		DocURL:   docBase + "R009",
	},

	// ============================================
	// Allocation Errors (R020-R029)
	// ============================================

	"R020": {
		Category: CategoryAllocation,
		Message:  "Native allocation failed",
		Detail:   "The native document refused to create a node. The batch stopped at that edit and the tree is desynchronized.",
		DocURL:   docBase + "R020",
	},

	// ============================================
	// Eval Errors (R030-R039)
	// ============================================

	"R030": {
		Category: CategoryEval,
		Message:  "Script failed",
		Detail:   "The script did not compile, raised an error, or produced a value that could not be serialized.",
		DocURL:   docBase + "R030",
	},
	"R031": {
		Category: CategoryEval,
		Message:  "Eval channel closed",
		Detail:   "The eval channel was closed while the request was pending.",
		DocURL:   docBase + "R031",
	},
	"R032": {
		Category:   CategoryEval,
		Message:    "Eval disabled",
		Detail:     "The eval feature is turned off in the configuration.",
		Suggestion: `Set "features.eval" to true in vango-web.json.`,
		DocURL:     docBase + "R032",
	},

	// ============================================
	// Hot-Reload Errors (R040-R049)
	// ============================================

	"R040": {
		Category:   CategoryHotReload,
		Message:    "Reload connection failed",
		Detail:     "The hot-reload websocket could not be opened or was lost. The client keeps retrying with backoff.",
		Suggestion: "Check that the reload server is running and that hotReload.url points at its /ws endpoint.",
		DocURL:     docBase + "R040",
	},
	"R041": {
		Category: CategoryHotReload,
		Message:  "Malformed reload message",
		Detail:   "A hot-reload message could not be decoded or applied. It was dropped and the connection stays open.",
		DocURL:   docBase + "R041",
	},

	// ============================================
	// Ingest Errors (R050-R059)
	// ============================================

	"R050": {
		Category:   CategoryIngest,
		Message:    "File too large",
		Detail:     "A file handle exceeded the configured ingest size limit.",
		Suggestion: `Raise "ingest.maxFileSize" in vango-web.json.`,
		DocURL:     docBase + "R050",
	},
	"R051": {
		Category: CategoryIngest,
		Message:  "Ingested file not found",
		Detail:   "No stored file matches the ingest id. It may have been claimed already or removed by cleanup.",
		DocURL:   docBase + "R051",
	},

	// ============================================
	// Config Errors (R060-R069)
	// ============================================

	"R060": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "vango-web.json contains an invalid value.",
		DocURL:   docBase + "R060",
	},
	"R061": {
		Category: CategoryConfig,
		Message:  "Configuration file unreadable",
		Detail:   "vango-web.json could not be read or is not valid JSON.",
		DocURL:   docBase + "R061",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(templates))
	for code := range templates {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := templates[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	templates[code] = template
}
