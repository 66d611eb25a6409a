package ffmpeg

import (
	"sort"
	"strings"
)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

type input struct {
	args []string
	url  string
}

// CommandBuilder builds FFmpeg commands with a fluent API.
// Input options apply to the next Input call.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	pending    []string
	inputs     []input
	maps       []string
	outputArgs []string
	output     string
	logLevel   string
	overwrite  bool
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Reconnect enables automatic reconnection for the next network input.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.pending = append(b.pending,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// Headers forwards HTTP request headers for the next input. User-Agent is
// passed with -user_agent, everything else as a CRLF-joined -headers value.
func (b *CommandBuilder) Headers(headers map[string]string) *CommandBuilder {
	if len(headers) == 0 {
		return b
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if strings.EqualFold(k, "User-Agent") {
			b.pending = append(b.pending, "-user_agent", headers[k])
			continue
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(headers[k])
		sb.WriteString("\r\n")
	}
	if sb.Len() > 0 {
		b.pending = append(b.pending, "-headers", sb.String())
	}
	return b
}

// InputArgs adds arbitrary arguments for the next input.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pending = append(b.pending, args...)
	return b
}

// Input adds an input source, consuming any pending input options.
func (b *CommandBuilder) Input(url string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: b.pending, url: url})
	b.pending = nil
	return b
}

// Map selects a stream for the output, e.g. "0:v".
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.maps = append(b.maps, "-map", spec)
	return b
}

// Seek bounds the output to [start, end]. Empty values are skipped.
func (b *CommandBuilder) Seek(start, end string) *CommandBuilder {
	if start != "" {
		b.outputArgs = append(b.outputArgs, "-ss", start)
	}
	if end != "" {
		b.outputArgs = append(b.outputArgs, "-to", end)
	}
	return b
}

// Codec sets the codec for every stream.
func (b *CommandBuilder) Codec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", codec)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// FragmentedMP4 makes the output playable before it is complete.
func (b *CommandBuilder) FragmentedMP4() *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "mp4",
		"-movflags", "frag_keyframe+empty_moov")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination. "-" writes to stdout.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build constructs the final command.
func (b *CommandBuilder) Build() *Command {
	args := make([]string, 0, 32)
	args = append(args, b.globalArgs...)

	if b.logLevel != "" {
		args = append(args, "-loglevel", b.logLevel)
	}
	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.url)
	}

	args = append(args, b.maps...)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
	}
}
