package components

import (
	"context"
	crand "crypto/rand"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/martinemde/autocycle/agentloop"
)

const (
	asciiLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	punctuation  = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

var loremWords = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do
eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis nostrud
exercitation ullamco laboris nisi aliquip ex ea commodo consequat duis aute irure in
reprehenderit voluptate velit esse cillum eu fugiat nulla pariatur excepteur sint occaecat
cupidatat non proident sunt culpa qui officia deserunt mollit anim id est laborum`)

// RandomValuesComponent offers commands that produce random numbers, strings
// and placeholder text.
type RandomValuesComponent struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomValuesComponent creates the component with a ChaCha8 generator
// seeded from the operating system.
func NewRandomValuesComponent() *RandomValuesComponent {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return NewRandomValuesComponentWithSource(rand.NewChaCha8(seed))
}

// NewRandomValuesComponentWithSource creates the component over src, for
// reproducible output.
func NewRandomValuesComponentWithSource(src rand.Source) *RandomValuesComponent {
	return &RandomValuesComponent{rng: rand.New(src)}
}

func (c *RandomValuesComponent) Name() string { return "random_values" }

func (c *RandomValuesComponent) Commands(ctx context.Context) ([]*agentloop.Command, error) {
	return []*agentloop.Command{
		agentloop.MustCommand(
			[]string{"random_number"},
			"Return random integers between min and max",
			[]agentloop.CommandParameter{
				agentloop.IntegerParam("min", "The minimum value, default 0", false),
				agentloop.IntegerParam("max", "The maximum value, default 65535", false),
				agentloop.IntegerParam("count", "The number of random numbers to return (1-256), default 1", false),
			},
			c.randomNumber,
		),
		agentloop.MustCommand(
			[]string{"generate_uuids"},
			"Return random UUIDs",
			[]agentloop.CommandParameter{
				agentloop.IntegerParam("count", "The number of UUIDs to return (1-256), default 1", false),
			},
			c.generateUUIDs,
		),
		agentloop.MustCommand(
			[]string{"generate_string"},
			"Return random strings of ASCII letters",
			[]agentloop.CommandParameter{
				agentloop.IntegerParam("len", "The length of the string (1-65535), default 10", false),
				agentloop.IntegerParam("count", "The number of strings to return (1-256), default 1", false),
			},
			c.generateString,
		),
		agentloop.MustCommand(
			[]string{"generate_password"},
			"Return random passwords of letters, numbers, and punctuation",
			[]agentloop.CommandParameter{
				agentloop.IntegerParam("len", "The length of the password (1-65535), default 16", false),
				agentloop.IntegerParam("count", "The number of passwords to return (1-256), default 1", false),
			},
			c.generatePassword,
		),
		agentloop.MustCommand(
			[]string{"lorem_ipsum", "generate_random_words", "generate_placeholder_text"},
			"Return a random sentence of lorem ipsum text",
			[]agentloop.CommandParameter{
				agentloop.IntegerParam("count", "The number of words to return (1-65535), default 1", false),
			},
			c.generatePlaceholderText,
		),
	}, nil
}

// intArg reads an optional integer argument and checks it lies in [min, max].
func intArg(args agentloop.CommandArgs, key string, def, min, max int) (int, error) {
	n, err := args.IntOr(key, def)
	if err != nil {
		return 0, agentloop.InvalidArgumentError("%v", err)
	}
	if n < min || n > max {
		return 0, agentloop.InvalidArgumentError("%s must be between %d and %d", key, min, max)
	}
	return n, nil
}

func (c *RandomValuesComponent) randomNumber(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	minV, err := args.IntOr("min", 0)
	if err != nil {
		return nil, agentloop.InvalidArgumentError("%v", err)
	}
	maxV, err := args.IntOr("max", 65535)
	if err != nil {
		return nil, agentloop.InvalidArgumentError("%v", err)
	}
	if minV > maxV {
		minV, maxV = maxV, minV
	}
	count, err := intArg(args, "count", 1, 1, 256)
	if err != nil {
		return nil, err
	}

	// Two's complement wrap keeps the span exact for any min <= max.
	span := uint64(maxV) - uint64(minV)
	if span == math.MaxUint64 {
		return nil, agentloop.InvalidArgumentError("the range from min to max is too wide")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, count)
	for i := range out {
		out[i] = int(uint64(minV) + c.rng.Uint64N(span+1))
	}
	return out, nil
}

func (c *RandomValuesComponent) generateUUIDs(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	count, err := intArg(args, "count", 1, 1, 256)
	if err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		out[i] = uuid.NewString()
	}
	return out, nil
}

func (c *RandomValuesComponent) generateString(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	length, err := intArg(args, "len", 10, 1, 65535)
	if err != nil {
		return nil, err
	}
	count, err := intArg(args, "count", 1, 1, 256)
	if err != nil {
		return nil, err
	}
	return c.randomStrings(asciiLetters, length, count), nil
}

func (c *RandomValuesComponent) generatePassword(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	length, err := intArg(args, "len", 16, 1, 65535)
	if err != nil {
		return nil, err
	}
	count, err := intArg(args, "count", 1, 1, 256)
	if err != nil {
		return nil, err
	}
	return c.randomStrings(asciiLetters+digits+punctuation, length, count), nil
}

func (c *RandomValuesComponent) randomStrings(alphabet string, length, count int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, count)
	buf := make([]byte, length)
	for i := range out {
		for j := range buf {
			buf[j] = alphabet[c.rng.IntN(len(alphabet))]
		}
		out[i] = string(buf)
	}
	return out
}

func (c *RandomValuesComponent) generatePlaceholderText(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	count, err := intArg(args, "count", 1, 1, 65535)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	words := make([]string, count)
	for i := range words {
		words[i] = loremWords[c.rng.IntN(len(loremWords))]
	}
	return strings.Join(words, " "), nil
}
