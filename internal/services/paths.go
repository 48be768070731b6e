package services

import "path"

// Document paths follow artifacts/{appId}/users/{ownerId}/forms/{formId}.

const maxDocIDLen = 128

// ValidDocID reports whether id can name a single path segment: ASCII
// letters, digits and . _ - @, never "." or "..".
func ValidDocID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > maxDocIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-', c == '@':
		default:
			return false
		}
	}
	return true
}

func FormsCollection(appID, ownerID string) string {
	return path.Join("artifacts", appID, "users", ownerID, "forms")
}

func FormPath(appID, ownerID, formID string) string {
	return path.Join(FormsCollection(appID, ownerID), formID)
}

// ownedFormPath is FormPath for ids taken from requests.
func ownedFormPath(appID, ownerID, formID string) (string, error) {
	if !ValidDocID(ownerID) {
		return "", NewUnauthorizedError("unauthorized")
	}
	if !ValidDocID(formID) {
		return "", NewInvalidError("invalid form id")
	}
	return FormPath(appID, ownerID, formID), nil
}

func CommentsPath(formPath string) string { return path.Join(formPath, "comments") }

func ResponsesPath(formPath string) string { return path.Join(formPath, "responses") }

func AccountsCollection(appID string) string {
	return path.Join("artifacts", appID, "accounts")
}
