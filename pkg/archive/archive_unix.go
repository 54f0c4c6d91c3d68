//go:build !windows

package archive

import "github.com/moby/sys/user"

// lookupUserName resolves uid through the host's passwd database. An
// unknown uid yields "".
func lookupUserName(uid int) string {
	u, err := user.LookupUid(uid)
	if err != nil {
		return ""
	}
	return u.Name
}

func lookupGroupName(gid int) string {
	g, err := user.LookupGid(gid)
	if err != nil {
		return ""
	}
	return g.Name
}
