package assistant

const (
	DefaultSystemPrompt = "You are a helpful personal assistant. Use the available tools when they help answer the user. Keep replies short and plain."

	defaultMaxTokens           = 1024
	defaultMaxToolIterations   = 5
	defaultCompactionThreshold = 40
	defaultKeepRecent          = 10

	summaryPrefix = "Summary of the earlier conversation:\n"
)

// Options tune Service.
type Options struct {
	SystemPrompt        string
	MaxTokens           int
	MaxToolIterations   int
	CompactionThreshold int
	KeepRecent          int
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		SystemPrompt:        DefaultSystemPrompt,
		MaxTokens:           defaultMaxTokens,
		MaxToolIterations:   defaultMaxToolIterations,
		CompactionThreshold: defaultCompactionThreshold,
		KeepRecent:          defaultKeepRecent,
	}
}

func WithSystemPrompt(p string) Option {
	return func(o *Options) {
		if p != "" {
			o.SystemPrompt = p
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithMaxToolIterations bounds how many tool rounds one inbound message may take.
func WithMaxToolIterations(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxToolIterations = n
		}
	}
}

// WithCompaction sets the history length that triggers compaction and how
// many recent messages survive it.
func WithCompaction(threshold, keepRecent int) Option {
	return func(o *Options) {
		if threshold > 0 {
			o.CompactionThreshold = threshold
		}
		if keepRecent >= 0 {
			o.KeepRecent = keepRecent
		}
	}
}
