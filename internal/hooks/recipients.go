package hooks

import (
	"context"
	"regexp"
	"strings"

	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

var (
	// emailPattern accepts "local@domain" and "Display Name <local@domain>".
	emailPattern = regexp.MustCompile(`^(?:.*<[^@<>\s]+@[^@<>\s]+>|[^@<>\s]+@[^@<>\s]+)$`)

	// groupPattern accepts "/buckets/{bid}/groups/{gid}".
	groupPattern = regexp.MustCompile(`^/buckets/[^/]+/groups/[^/]+$`)
)

// IsEmail reports whether s is shaped like an email address.
func IsEmail(s string) bool { return emailPattern.MatchString(s) }

// IsGroupURI reports whether s is shaped like a group path.
func IsGroupURI(s string) bool { return groupPattern.MatchString(s) }

// splitGroupURI returns the bucket URI and group id of a group path.
func splitGroupURI(uri string) (bucketURI, groupID string) {
	bucketURI, groupID, _ = strings.Cut(uri, "/groups/")
	return bucketURI, groupID
}

// ExpandRecipients resolves a hook's recipient list into email addresses.
//
// Entries that are not shaped like a group path are kept verbatim, first and
// in order. Every entry is then rendered against hctx; those that are group
// paths after rendering are looked up in storage and their members appended.
// Members are principals such as "portier:alice@example.com": the provider
// prefix is dropped and only email-shaped ids are kept. Groups that do not
// exist are skipped.
func ExpandRecipients(ctx context.Context, storage types.StorageReader, renderer *email.Renderer, recipients []string, hctx Context) ([]string, error) {
	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if !IsGroupURI(r) {
			emails = append(emails, r)
		}
	}

	var groups []string
	for _, r := range recipients {
		rendered, err := renderer.Render(r, hctx)
		if err != nil {
			return nil, err
		}
		if IsGroupURI(rendered) {
			groups = append(groups, rendered)
		}
	}

	for _, uri := range groups {
		bucketURI, groupID := splitGroupURI(uri)
		group, err := storage.Get(ctx, bucketURI, types.ResourceGroup, groupID)
		if err != nil {
			if types.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, member := range groupMembers(group) {
			if _, after, found := strings.Cut(member, ":"); found {
				member = after
			}
			if IsEmail(member) {
				emails = append(emails, member)
			}
		}
	}
	return emails, nil
}

func groupMembers(group types.Object) []string {
	members, err := stringList(group["members"])
	if err != nil {
		return nil
	}
	return members
}
