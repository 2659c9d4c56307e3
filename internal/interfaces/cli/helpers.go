package cli

import (
	"context"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/livecare/pkg/errors"
)

func commandContext(cmd *cobra.Command) (*CLIContext, context.Context, context.CancelFunc, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := cliCtx.WithTimeout(cmd.Context())
	return cliCtx, ctx, cancel, nil
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf(errors.ErrCodeValidation, "%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

type inputFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// readInput loads path and guesses its media type from the extension, then
// from the content.
func readInput(path string) (*inputFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeValidation, "cannot read %s", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &inputFile{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

// textArgument returns the joined args, or the contents of file when set.
func textArgument(args []string, file string) (string, error) {
	if file != "" {
		if len(args) > 0 {
			return "", errors.New(errors.ErrCodeValidation, "pass either text arguments or --file, not both")
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrCodeValidation, "cannot read %s", file)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", errors.New(errors.ErrCodeValidation, "text is required")
	}
	return strings.Join(args, " "), nil
}
