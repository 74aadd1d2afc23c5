package sceimage

import "errors"

var errNoShstrtab = errors.New("input ELF has no .shstrtab section")
