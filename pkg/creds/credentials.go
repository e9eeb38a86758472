package creds

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// Credentials is an immutable snapshot of everything needed to authenticate
// against the external resource for one rotation epoch. Callers must not
// mutate a snapshot after handing it to a Store.
type Credentials struct {
	Endpoint  string `yaml:"endpoint"`
	Principal string `yaml:"principal"`
	Secret    string `yaml:"secret"`

	LeaseID string    `yaml:"leaseID,omitempty"`
	Expiry  time.Time `yaml:"expiry,omitempty"`
}

// Save writes the snapshot to path so a restarted process can resume the
// current epoch without refetching.
func (c *Credentials) Save(path string) error {
	bytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshalling credentials: %v", err)
	}

	err = os.WriteFile(path, bytes, 0600)
	if err != nil {
		return fmt.Errorf("error writing credentials to file: %v", err)
	}

	log.Infof("wrote credentials snapshot to %s", path)
	return nil
}

func unmarshalCredentials(bytes []byte) (*Credentials, error) {
	var c Credentials
	err := yaml.Unmarshal(bytes, &c)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling credentials: %v", err)
	}
	return &c, nil
}

// fields returns structured log fields for a snapshot. The secret itself is
// never logged.
func (c *Credentials) fields() log.Fields {
	fields := log.Fields{
		"endpoint":  c.Endpoint,
		"principal": c.Principal,
	}

	if c.LeaseID != "" {
		fields["leaseID"] = c.LeaseID
	}
	if !c.Expiry.IsZero() {
		fields["expiry"] = c.Expiry.Format(time.RFC3339)
	}

	return fields
}
