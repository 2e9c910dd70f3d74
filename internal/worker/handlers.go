package worker

import (
	"context"
	"strings"
	"time"

	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/tags"
)

func (w *Worker) handleLoadLibrary(ctx context.Context, env protocol.Envelope) (any, error) {
	var req protocol.LoadLibraryRequest
	if err := env.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "worker", "load library", "", err)
	}
	if strings.TrimSpace(req.Filepath) == "" {
		return nil, services.Wrap(services.ErrValidation, "worker", "load library", "filepath is required", nil)
	}
	path := library.NormalizePath(req.Filepath)

	if !req.ReloadFromDisk {
		if input, _ := w.session.Paths(); input == path {
			if lib := w.session.Library(); lib != nil {
				w.logger.Debug("serving library from memory", logging.String("path", path))
				return protocol.LibraryLoadedReply{Library: lib, Filepath: path, LibraryMeta: w.session.Meta()}, nil
			}
		}
	}

	lib, meta, err := library.ReadFile(w.codec, path)
	if err != nil {
		return nil, err
	}
	reply := protocol.LibraryLoadedReply{Library: lib.Clone(), Filepath: path, LibraryMeta: meta}
	w.session.Load(lib, meta, path)
	w.session.SetOutputPath(path)
	if w.watcher != nil {
		if err := w.watcher.Watch(path); err != nil {
			w.logger.Debug("library watch failed", logging.Error(err))
		}
	}
	w.logger.Info("library loaded",
		logging.String("path", path),
		logging.Int("tracks", meta.TrackCount),
		logging.Int("playlists", meta.PlaylistCount))
	return reply, nil
}

func (w *Worker) handleWriteLibrary(ctx context.Context, env protocol.Envelope) (any, error) {
	var req protocol.WriteLibraryRequest
	if err := env.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "worker", "write library", "", err)
	}
	if strings.TrimSpace(req.InputFilepath) == "" || strings.TrimSpace(req.OutputFilepath) == "" {
		return nil, services.Wrap(services.ErrValidation, "worker", "write library", "input and output paths are required", nil)
	}
	input := library.NormalizePath(req.InputFilepath)
	output := library.NormalizePath(req.OutputFilepath)

	if req.Library == nil {
		return nil, w.writeSession(output, req.SelectedPlaylistIDs)
	}

	if !w.writing.CompareAndSwap(false, true) {
		return nil, services.Wrap(services.ErrIllegalTransition, "worker", "write library", "a write is already in progress", nil)
	}
	defer w.writing.Store(false)

	if err := w.write(output, req.Library.Subset(req.SelectedPlaylistIDs)); err != nil {
		return nil, err
	}
	w.session.Load(req.Library, req.Library.Meta(), input)
	w.session.SetOutputPath(output)
	return protocol.Empty{}, nil
}

// writeSession flushes edits made through the worker session.
func (w *Worker) writeSession(output string, selected []string) (err error) {
	w.session.SetOutputPath(output)
	lib, _, out, err := w.session.BeginWrite()
	if err != nil {
		return err
	}
	defer func() { w.session.FinishWrite(err) }()
	return w.write(out, lib.Subset(selected))
}

func (w *Worker) write(output string, lib *library.Library) error {
	if w.watcher != nil && w.watcher.Target() == output {
		w.watcher.Quiet(2 * time.Second)
	}
	if err := library.WriteFile(w.codec, output, lib); err != nil {
		return err
	}
	w.logger.Info("library written",
		logging.String("path", output),
		logging.Int("tracks", len(lib.Tracks)),
		logging.Int("playlists", len(lib.Playlists)))
	return nil
}

func (w *Worker) handleWriteAudioTag(ctx context.Context, env protocol.Envelope) (any, error) {
	var req protocol.WriteAudioTagRequest
	if err := env.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "worker", "write tag", "", err)
	}
	path, err := resolveFileLocation(req.FileLocation)
	if err != nil {
		return nil, err
	}
	value, err := tags.Normalize(req.TagName, req.Value)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeouts.WriteTag())
	defer cancel()
	if err := w.tags.WriteTag(ctx, path, req.TagName, value, req.UserEmail); err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(req.TagName))
	if w.session.Loaded() {
		mutateErr := w.session.Mutate(func(lib *library.Library) error {
			track, ok := lib.TrackByLocation(path)
			if !ok {
				return services.Wrap(services.ErrNotFound, "worker", "write tag", "track not in library", nil)
			}
			tags.Apply(track, name, value)
			return nil
		})
		if mutateErr != nil {
			w.logger.Debug("tag written to file only", logging.String("path", path), logging.Error(mutateErr))
		}
	}
	w.logger.Info("tag written",
		logging.String("path", path),
		logging.String("tag", name),
		logging.String("value", value))
	return protocol.Empty{}, nil
}

func resolveFileLocation(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", services.Wrap(services.ErrValidation, "worker", "write tag", "fileLocation is required", nil)
	}
	if strings.HasPrefix(location, "file:") {
		path, err := library.LocationToPath(location)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "worker", "write tag", location, err)
		}
		return path, nil
	}
	return library.NormalizePath(location), nil
}

func (w *Worker) handleServerStart(ctx context.Context, env protocol.Envelope) (any, error) {
	var req protocol.ServerStartRequest
	if err := env.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "worker", "server start", "", err)
	}
	started, err := w.server.Start(ctx, req.AudioFilesRootFolder)
	if err != nil {
		return nil, err
	}
	if started.AlreadyRunning {
		w.logger.Info("audio server already running", logging.String("address", started.Address))
	}
	return protocol.ServerStartedReply{
		TempConversionFolder: started.Folder.Path,
		ConversionFolderID:   started.Folder.ID,
		Address:              "http://" + started.Address,
	}, nil
}

func (w *Worker) handleServerStop(ctx context.Context, _ protocol.Envelope) (any, error) {
	if err := w.server.Stop(ctx); err != nil {
		return nil, err
	}
	return protocol.Empty{}, nil
}
