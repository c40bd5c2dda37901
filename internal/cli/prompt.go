package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForFile asks for an image path on in, writing the prompt to out.
// Returns an empty string if the user enters nothing.
func PromptForFile(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Image file: ")

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}

	return strings.Trim(strings.TrimSpace(input), `"'`)
}
