package protocol

import "tempo/internal/library"

// LoadLibraryRequest asks the worker to parse a library file.
type LoadLibraryRequest struct {
	Filepath       string `json:"filepath"`
	ReloadFromDisk bool   `json:"reloadFromDisk,omitempty"`
}

// LibraryLoadedReply carries the parsed library back to the UI.
type LibraryLoadedReply struct {
	Library     *library.Library `json:"library"`
	Filepath    string           `json:"filepath"`
	LibraryMeta library.Meta     `json:"libraryMeta"`
}

// WriteLibraryRequest asks the worker to serialize a library to disk.
type WriteLibraryRequest struct {
	Library             *library.Library `json:"library"`
	InputFilepath       string           `json:"inputFilepath"`
	OutputFilepath      string           `json:"outputFilepath"`
	SelectedPlaylistIDs []string         `json:"selectedPlaylistIds,omitempty"`
}

// WriteAudioTagRequest asks the worker to write one tag into an audio file.
type WriteAudioTagRequest struct {
	FileLocation string `json:"fileLocation"`
	TagName      string `json:"tagName"`
	UserEmail    string `json:"userEmail,omitempty"`
	Value        string `json:"value"`
}

// ServerStartRequest asks the worker to start the audio file server.
type ServerStartRequest struct {
	AudioFilesRootFolder string `json:"audioFilesRootFolder"`
}

// ServerStartedReply announces a ready server and its conversion folder.
type ServerStartedReply struct {
	TempConversionFolder string `json:"tempConversionFolder"`
	ConversionFolderID   string `json:"conversionFolderId"`
	Address              string `json:"address,omitempty"`
}

// ServerErrorReply reports a worker-side failure.
type ServerErrorReply struct {
	Error   string  `json:"error"`
	Kind    string  `json:"kind,omitempty"`
	Channel Channel `json:"channel,omitempty"`
}

// LibraryFileChangedEvent reports that the loaded library changed on disk.
type LibraryFileChangedEvent struct {
	Filepath string `json:"filepath"`
}

// Empty is the payload of channels that carry no data.
type Empty struct{}
