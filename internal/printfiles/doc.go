// Package printfiles reads print job files from the printer's FTPS server.
//
// Jobs sent from the slicer are stored under /cache, jobs saved on the printer
// at the root. Both are .3mf archives (zip) carrying a rendered plate preview
// (Metadata/plate_N.png) and the slicer's summary (Metadata/slice_info.config)
// with the filament weight. All access is read-only.
package printfiles
