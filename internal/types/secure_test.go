package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "smtp-password-12345"

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%+v", "%#v"} {
		out := fmt.Sprintf(verb, s)
		if strings.Contains(out, testSecret) {
			t.Errorf("%s leaked the secret: %q", verb, out)
		}
	}
}

func TestSecretString_MarshalJSON_InStruct(t *testing.T) {
	type smtpSettings struct {
		Host     string       `json:"host"`
		Password SecretString `json:"password"`
	}

	data, err := json.Marshal(smtpSettings{Host: "localhost", Password: SecretString(testSecret)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), testSecret) {
		t.Errorf("JSON leaked the secret: %s", data)
	}
	if !strings.Contains(string(data), redactedPlaceholder) {
		t.Errorf("JSON missing placeholder: %s", data)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	if s.Unmask() != testSecret {
		t.Errorf("Unmask() = %q", s.Unmask())
	}
	if !s.IsSet() || SecretString("").IsSet() {
		t.Error("IsSet() mismatch")
	}
}
