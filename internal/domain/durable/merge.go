package durable

import (
	"errors"
	"fmt"
)

// MergeStrategy selects how phase results are folded into the context.
type MergeStrategy string

const (
	// MergeSafe only adds keys absent from the persistent partition.
	// Existing keys are never overwritten.
	MergeSafe MergeStrategy = "safe"

	// MergeUpdate overwrites non-protected keys and adds new ones.
	MergeUpdate MergeStrategy = "update"

	// MergeReplace discards prior persistent state and substitutes the
	// incoming data wholesale. Protected keys are carried over untouched.
	MergeReplace MergeStrategy = "replace"

	// MergePrefixed stores every key under a caller-supplied prefix so phase
	// results can be namespaced without collision.
	MergePrefixed MergeStrategy = "prefixed"
)

var (
	// ErrUnknownStrategy is returned for a strategy outside the known set.
	ErrUnknownStrategy = errors.New("unknown merge strategy")

	// ErrPrefixRequired is returned when the prefixed strategy is used
	// without a prefix.
	ErrPrefixRequired = errors.New("prefix required for prefixed merge")
)

// MergePhaseResults folds data into the persistent partition under the given
// strategy. prefix is only consulted by MergePrefixed. Every call, including
// a safe merge where all keys pre-exist, increments the version and appends
// one change-log entry.
func (c *Context) MergePhaseResults(data map[string]any, strategy MergeStrategy, prefix string) error {
	switch strategy {
	case MergeSafe:
		added := 0
		for k, v := range data {
			if _, exists := c.persistent[k]; exists {
				continue
			}
			c.persistent[k] = deepCopyValue(v)
			added++
		}
		c.bump("merge", fmt.Sprintf("strategy=safe keys=%d added=%d", len(data), added))

	case MergeUpdate:
		applied := 0
		for k, v := range data {
			if _, isProtected := c.protected[k]; isProtected {
				continue
			}
			c.persistent[k] = deepCopyValue(v)
			applied++
		}
		c.bump("merge", fmt.Sprintf("strategy=update keys=%d applied=%d", len(data), applied))

	case MergeReplace:
		next := deepCopyMap(data)
		for k := range c.protected {
			if prev, ok := c.persistent[k]; ok {
				next[k] = prev
			}
		}
		c.persistent = next
		c.bump("merge", fmt.Sprintf("strategy=replace keys=%d", len(data)))

	case MergePrefixed:
		if prefix == "" {
			return ErrPrefixRequired
		}
		for k, v := range data {
			pk := prefix + "." + k
			if _, isProtected := c.protected[pk]; isProtected {
				continue
			}
			c.persistent[pk] = deepCopyValue(v)
		}
		c.bump("merge", fmt.Sprintf("strategy=prefixed prefix=%s keys=%d", prefix, len(data)))

	default:
		return fmt.Errorf("merge strategy %q: %w", strategy, ErrUnknownStrategy)
	}

	return nil
}
