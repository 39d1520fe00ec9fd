package web

import (
	"fmt"

	"github.com/tobyv/warbler/util"
)

type WebfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []WebfingerLink `json:"links"`
}

type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// GetWebfinger answers a WebFinger lookup for the local actor. Anything
// but the configured account is a lookup miss.
func GetWebfinger(resource string, conf *util.AppConfig) (*WebfingerResponse, error) {
	account := fmt.Sprintf("acct:%s@%s", conf.Conf.Username, conf.Conf.Domain)
	if resource != account {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}

	return &WebfingerResponse{
		Subject: account,
		Links: []WebfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: conf.ActorURI(),
			},
		},
	}, nil
}
