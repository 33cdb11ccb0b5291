package sandbox

import (
	"regexp"
	"strings"
)

// blockedCommand pairs a dangerous-command pattern with a human-readable
// reason. The guard runs before any command reaches a sandbox, docker or
// local alike.
type blockedCommand struct {
	pattern *regexp.Regexp
	reason  string
}

var blockedCommands = []blockedCommand{
	// Destructive recursive deletion
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*--no-preserve-root`), "rm with --no-preserve-root"},
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*)?-[a-z]*r[a-z]*\s+(-[a-z]*\s+)*(/|/\*)\s*$`), "recursive deletion of the root filesystem"},
	{regexp.MustCompile(`(?i)\brm\s+.*(/etc/passwd|/etc/shadow|/boot/)`), "removal of critical system files"},

	// Disk and filesystem destruction
	{regexp.MustCompile(`(?i)\bmkfs\b`), "filesystem creation"},
	{regexp.MustCompile(`(?i)\b(fdisk|parted|gdisk)\b`), "disk partitioning"},
	{regexp.MustCompile(`(?i)\b(shred|wipefs|blkdiscard)\b`), "destructive disk wipe"},
	{regexp.MustCompile(`(?i)\bdd\s+.*\bof\s*=\s*/dev/(sd[a-z]|hd[a-z]|nvme|vd[a-z]|xvd[a-z])`), "raw write to a disk device"},
	{regexp.MustCompile(`(?i)>\s*/dev/(sd[a-z]|hd[a-z]|nvme|vd[a-z]|xvd[a-z])`), "redirect to a disk device"},
	{regexp.MustCompile(`(?i)>\s*/(proc|sys)/`), "write to kernel interfaces"},

	// System shutdown and reboot
	{regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff|halt)\b`), "system shutdown"},
	{regexp.MustCompile(`(?i)\binit\s+[06]\b`), "system shutdown via init"},
	{regexp.MustCompile(`(?i)\bsystemctl\s+(halt|poweroff|reboot|shutdown)`), "system shutdown via systemctl"},

	// Fork bombs
	{regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), "fork bomb"},
	{regexp.MustCompile(`(?i)\bwhile\s+true.*\bfork\b`), "fork loop"},

	// Remote code piped straight into a shell
	{regexp.MustCompile(`(?i)\b(curl|wget)\s+.*\|\s*(ba)?sh`), "remote script piped into a shell"},

	// Permission destruction on the root tree
	{regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]*\s+)*777\s+/\s*$`), "chmod 777 on /"},
	{regexp.MustCompile(`(?i)\bchown\s+.*\s+/\s*$`), "chown on /"},
}

// GuardCommand checks a command against the blocklist and returns a
// non-empty reason when it must not run. An empty string means the
// command is allowed.
func GuardCommand(command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	for _, bc := range blockedCommands {
		if bc.pattern.MatchString(command) {
			return bc.reason
		}
	}
	return ""
}
