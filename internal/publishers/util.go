package publishers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render encodes the output as YAML. With "userinfo_comment" set, the
// subscription-userinfo header is prepended as a comment line so clients
// reading a static file can still see it. With "base64" set, the result is
// base64 encoded.
func Render(out *Output, config map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer

	withComment, _ := config["userinfo_comment"].(bool)
	if withComment && out.Info.Complete() {
		fmt.Fprintf(&buf, "# subscription-userinfo: %s\n", out.Info.Header())
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out.Document); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	useBase64, _ := config["base64"].(bool)
	if useBase64 {
		return []byte(base64.StdEncoding.EncodeToString(buf.Bytes())), nil
	}
	return buf.Bytes(), nil
}

// ExpandPath substitutes {name} in a configured path template.
func ExpandPath(tmpl string, out *Output) string {
	return strings.ReplaceAll(tmpl, "{name}", out.Name)
}
