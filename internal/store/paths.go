package store

import (
	"strings"
)

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ID returns the last segment of a path.
func ID(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Parent returns the collection path of a document path, or the document path
// owning a collection.
func Parent(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

// IsDocPath reports whether path names a document (even number of segments).
func IsDocPath(path string) bool {
	if path == "" {
		return false
	}
	return len(strings.Split(path, "/"))%2 == 0
}

// CollectionGroup strips document ids from a collection path, so that
// "groups/g1/messages" becomes "groups/messages".
func CollectionGroup(collection string) string {
	parts := strings.Split(collection, "/")
	out := make([]string, 0, (len(parts)+1)/2)
	for i := 0; i < len(parts); i += 2 {
		out = append(out, parts[i])
	}
	return strings.Join(out, "/")
}

// Canonical document and collection paths.

func UserPath(userID string) string { return Join("users", userID) }

func GroupsPath() string { return "groups" }

func GroupPath(groupID string) string { return Join("groups", groupID) }

func MessagesPath(groupID string) string { return Join("groups", groupID, "messages") }

func MessagePath(groupID, messageID string) string {
	return Join("groups", groupID, "messages", messageID)
}

func NotesPath(userID string) string { return Join("users", userID, "notes") }

func NotePath(userID, noteID string) string { return Join("users", userID, "notes", noteID) }

func ReadStatesPath(userID string) string { return Join("users", userID, "groupStates") }

func ReadStatePath(userID, groupID string) string {
	return Join("users", userID, "groupStates", groupID)
}
