// Package cache names the Redis keys used by the user cache and the
// distributed locks.
package cache

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityUser EntityType = "user"
	EntityLock EntityType = "lock"
)

type KeyType string

const (
	KeyID   KeyType = "id"
	KeyName KeyType = "name"
)

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entity, keyType, value)
}

// ParseKey splits a key built by GenerateKey. The value may itself contain
// colons.
func ParseKey(key string) (EntityType, KeyType, string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return EntityType(parts[0]), KeyType(parts[1]), parts[2], true
}

// UserKey is the cache key of a user looked up by id.
func UserKey(id uint) string {
	return GenerateKey(EntityUser, KeyID, id)
}

// LockKey is the key of the named distributed lock.
func LockKey(name string) string {
	return GenerateKey(EntityLock, KeyName, name)
}
