package config

import "time"

// Version is the current version of declass
const Version = "v1.0.0"

// Author is the author of the tool
const Author = "@lcalzada-xor"

// Default Values
const (
	DefaultConcurrency   = 8
	DefaultTimeout       = 10 * time.Second
	DefaultVerifyTimeout = 5 * time.Second
	DefaultFormat        = "text"
	DefaultInheritance   = "skip"
	DefaultUserAgent     = "declass/" + Version
	DefaultCacheMaxAge   = 30 * 24 * time.Hour
)

// FileName is the config file looked up from the working directory upwards.
const FileName = "declass.yaml"

// ScriptExtensions are the file extensions lowered as JavaScript
var ScriptExtensions = []string{
	".js",
	".cjs",
}

// DocumentExtensions are the file extensions whose inline scripts are lowered
var DocumentExtensions = []string{
	".html",
	".htm",
}

// ScriptTypes are the <script type> values that denote classic scripts.
// The empty string stands for a missing type attribute.
var ScriptTypes = []string{
	"",
	"text/javascript",
	"application/javascript",
	"application/x-javascript",
	"text/ecmascript",
	"application/ecmascript",
}

// Formats are the supported output formats
var Formats = []string{"text", "human", "json"}
