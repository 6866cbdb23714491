package compose

import (
	"strings"

	"github.com/shinji-kodama/compose-backup/internal/model"
)

// mysqlImageMarkers are matched case-insensitively against the image name.
var mysqlImageMarkers = []string{"mysql", "mariadb"}

// mysqlEnvPrefix is matched case-insensitively against environment keys.
const mysqlEnvPrefix = "MYSQL_"

// IsMySQLService reports whether svc looks like a MySQL-family database:
// its image name contains "mysql" or "mariadb", or one of its environment
// variables starts with "MYSQL_". Both checks ignore case.
func IsMySQLService(svc model.ServiceConfig) bool {
	image := strings.ToLower(svc.Image)
	for _, marker := range mysqlImageMarkers {
		if strings.Contains(image, marker) {
			return true
		}
	}
	for k := range svc.Environment {
		if strings.HasPrefix(strings.ToUpper(k), mysqlEnvPrefix) {
			return true
		}
	}
	return false
}

// FindMySQLServices returns the names of the MySQL-family services, in the
// order of the input.
func FindMySQLServices(services []model.ServiceConfig) []string {
	var names []string
	for _, svc := range services {
		if IsMySQLService(svc) {
			names = append(names, svc.Name)
		}
	}
	return names
}

// FilterServices keeps the names that appear in only, preserving the order
// of names. An empty only keeps everything.
func FilterServices(names, only []string) []string {
	if len(only) == 0 {
		return names
	}
	wanted := make(map[string]bool, len(only))
	for _, s := range only {
		wanted[s] = true
	}
	var out []string
	for _, n := range names {
		if wanted[n] {
			out = append(out, n)
		}
	}
	return out
}
