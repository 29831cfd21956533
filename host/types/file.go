package types

import (
	"fmt"
	"io/fs"
	"syscall"
)

// FileMode holds mode bits as in inode(7) stat.st_mode, including file type bits.
type FileMode uint32

// Mask for the permission bits, excluding file type bits.
const FileModeBitsMask FileMode = 07777

func (m FileMode) String() string {
	return fmt.Sprintf("%#o", uint32(m))
}

// IsDir reports whether the file type bits are for a directory.
func (m FileMode) IsDir() bool {
	return uint32(m)&syscall.S_IFMT == syscall.S_IFDIR
}

// IsRegular reports whether the file type bits are for a regular file.
func (m FileMode) IsRegular() bool {
	return uint32(m)&syscall.S_IFMT == syscall.S_IFREG
}

// FileModeFromFs converts from fs.FileMode to inode(7) mode bits.
func FileModeFromFs(mode fs.FileMode) FileMode {
	m := FileMode(mode.Perm())
	switch {
	case mode&fs.ModeDir != 0:
		m |= syscall.S_IFDIR
	case mode&fs.ModeSymlink != 0:
		m |= syscall.S_IFLNK
	case mode&fs.ModeNamedPipe != 0:
		m |= syscall.S_IFIFO
	case mode&fs.ModeSocket != 0:
		m |= syscall.S_IFSOCK
	case mode&fs.ModeCharDevice != 0:
		m |= syscall.S_IFCHR
	case mode&fs.ModeDevice != 0:
		m |= syscall.S_IFBLK
	default:
		m |= syscall.S_IFREG
	}
	if mode&fs.ModeSetuid != 0 {
		m |= syscall.S_ISUID
	}
	if mode&fs.ModeSetgid != 0 {
		m |= syscall.S_ISGID
	}
	if mode&fs.ModeSticky != 0 {
		m |= syscall.S_ISVTX
	}
	return m
}

// FsFileMode converts the permission bits to fs.FileMode.
func (m FileMode) FsFileMode() fs.FileMode {
	mode := fs.FileMode(m & 0777)
	if m&syscall.S_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&syscall.S_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&syscall.S_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// Timespec from syscall.Timespec for Linux
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Stat_t from syscall.Stat_t for Linux
type Stat_t struct {
	Mode uint32
	Uid  uint32
	Gid  uint32
	Size int64
	Mtim Timespec
}

// IsDir reports whether Mode describes a directory.
func (s *Stat_t) IsDir() bool {
	return FileMode(s.Mode).IsDir()
}

// Dirent is similar to syscall.Dirent
type DirEnt struct {
	Ino  uint64
	Type uint8
	Name string
}

func (d *DirEnt) IsDirectory() bool {
	return d.Type == syscall.DT_DIR
}

func (d *DirEnt) IsSymbolicLink() bool {
	return d.Type == syscall.DT_LNK
}

func (d *DirEnt) IsRegularFile() bool {
	return d.Type == syscall.DT_REG
}

// DirEntTypeFromFs returns the DirEnt.Type for the given fs.FileMode.
func DirEntTypeFromFs(mode fs.FileMode) uint8 {
	switch {
	case mode.IsDir():
		return syscall.DT_DIR
	case mode&fs.ModeSymlink != 0:
		return syscall.DT_LNK
	case mode.IsRegular():
		return syscall.DT_REG
	default:
		return syscall.DT_UNKNOWN
	}
}

type DirEntResult struct {
	DirEnt DirEnt
	Error  error
}
