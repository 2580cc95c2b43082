// Package storage places mirrored media on disk.
//
// Content lives under {root}/{username}/{sourceType}/{fileType}s/ with
// deterministic sanitized names. Every write goes to a uniquely suffixed
// ".part" file first and is renamed into place only after the transfer
// completed, so a crash never leaves a truncated file under a final name.
//
// Avatar and header images are singleton assets: the current one is kept as
// avatar.{ext} and replaced versions are archived as avatar-{ts}.{ext}.
package storage
