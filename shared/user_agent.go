package shared

import (
	"fmt"
	"os"
	"strings"
)

const userAgentTemplate = "Herald-Bot/%s (%s)"

type IUserAgent interface {
	Value() string
}

type userAgent struct {
	userAgentValue string
}

func NewUserAgent(cfg *Config) IUserAgent {
	return &userAgent{
		userAgentValue: buildUserAgentString(cfg.InstanceName),
	}
}

func buildUserAgentString(instance string) string {
	versionStr := defaultVersion
	if versionBytes, err := os.ReadFile(versionFile); err == nil {
		versionStr = strings.TrimPrefix(strings.TrimSpace(string(versionBytes)), "v")
	}
	return fmt.Sprintf(userAgentTemplate, versionStr, instance)
}

func (ua *userAgent) Value() string {
	return ua.userAgentValue
}
