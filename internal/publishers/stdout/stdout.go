package stdout

import (
	"context"
	"fmt"
	"io"
	"os"

	"proxygen/internal/publishers"
)

type Publisher struct {
	w io.Writer
}

func (p *Publisher) Publish(ctx context.Context, out *publishers.Output, config map[string]interface{}) error {
	payload, err := publishers.Render(out, config)
	if err != nil {
		return err
	}

	w := p.w
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, "========== GENERATED CONFIG ==========")
	fmt.Fprint(w, string(payload))
	fmt.Fprintln(w, "\n======================================")
	return nil
}

func init() {
	publishers.Register("stdout", func() publishers.Publisher { return &Publisher{} })
}
