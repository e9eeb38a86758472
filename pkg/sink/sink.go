package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	log "github.com/sirupsen/logrus"

	"github.com/credrotate/credrotate/pkg/creds"
)

// FileSink renders the current credentials through a template to a file so a
// co-located process can pick them up. An empty output path renders to
// stdout instead.
type FileSink struct {
	template *template.Template
	path     string
}

func New(templatePath, outPath string) (*FileSink, error) {
	t, err := template.ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("error opening template: %v", err)
	}
	return &FileSink{template: t, path: outPath}, nil
}

func (s *FileSink) Render(c *creds.Credentials) error {
	if s.path == "" {
		return s.template.Execute(os.Stdout, templateContext(c))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write to a temp file and rename so readers never see a half-written
	// secret.
	tmp, err := os.CreateTemp(dir, ".creds-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := s.template.Execute(tmp, templateContext(c)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}

	log.Infof("wrote credentials to %s", s.path)
	return nil
}

// templateContext exposes the snapshot fields plus the process environment,
// so templates can mix rotated secrets with static settings.
func templateContext(c *creds.Credentials) map[string]string {
	ctx := make(map[string]string)

	for _, v := range os.Environ() {
		splitEnv := strings.SplitN(v, "=", 2)
		ctx[splitEnv[0]] = splitEnv[1]
	}

	ctx["Endpoint"] = c.Endpoint
	ctx["Principal"] = c.Principal
	ctx["Username"] = c.Principal
	ctx["Secret"] = c.Secret
	ctx["Password"] = c.Secret

	return ctx
}
