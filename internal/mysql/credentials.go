package mysql

import "github.com/shinji-kodama/compose-backup/internal/model"

// RootUser is the account used when a root password is configured.
const RootUser = "root"

// Environment variable names recognised by the official mysql and mariadb
// images, in lookup order.
var (
	rootPasswordVars = []string{"MYSQL_ROOT_PASSWORD", "MARIADB_ROOT_PASSWORD"}
	userVars         = []string{"MYSQL_USER", "MARIADB_USER", "MYSQL_USERNAME"}
	passwordVars     = []string{"MYSQL_PASSWORD", "MARIADB_PASSWORD"}
)

// ResolveCredentials picks the account to connect with from a container
// environment.
//
// A non-empty root password always wins. Otherwise a user and a password
// must both be present. The boolean is false when neither rule applies.
func ResolveCredentials(env map[string]string) (model.Credentials, bool) {
	if pw := firstNonEmpty(env, rootPasswordVars); pw != "" {
		return model.Credentials{User: RootUser, Password: pw}, true
	}

	user := firstNonEmpty(env, userVars)
	pw := firstNonEmpty(env, passwordVars)
	if user != "" && pw != "" {
		return model.Credentials{User: user, Password: pw}, true
	}
	return model.Credentials{}, false
}

func firstNonEmpty(env map[string]string, keys []string) string {
	for _, k := range keys {
		if v := env[k]; v != "" {
			return v
		}
	}
	return ""
}
