package web

import (
	"testing"

	"github.com/tobyv/warbler/util"
)

func testConfig() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "example.com"
	conf.Conf.Username = "blog"
	conf.Conf.DisplayName = "Example Blog"
	conf.Conf.Summary = "A federated blog"
	return conf
}

func TestGetWebfinger(t *testing.T) {
	conf := testConfig()

	resp, err := GetWebfinger("acct:blog@example.com", conf)
	if err != nil {
		t.Fatalf("GetWebfinger failed: %v", err)
	}

	if resp.Subject != "acct:blog@example.com" {
		t.Errorf("Unexpected subject: %s", resp.Subject)
	}
	if len(resp.Links) != 1 {
		t.Fatalf("Expected 1 link, got %d", len(resp.Links))
	}
	link := resp.Links[0]
	if link.Rel != "self" {
		t.Errorf("Expected rel 'self', got %q", link.Rel)
	}
	if link.Type != "application/activity+json" {
		t.Errorf("Unexpected link type: %q", link.Type)
	}
	if link.Href != "https://example.com/activitypub/actor" {
		t.Errorf("Unexpected href: %q", link.Href)
	}
}

func TestGetWebfingerUnknownResource(t *testing.T) {
	conf := testConfig()

	cases := []string{
		"acct:other@example.com",
		"acct:blog@other.example",
		"https://example.com/activitypub/actor",
		"",
	}
	for _, resource := range cases {
		if _, err := GetWebfinger(resource, conf); err == nil {
			t.Errorf("Expected lookup of %q to fail", resource)
		}
	}
}
