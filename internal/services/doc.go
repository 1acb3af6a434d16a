// Package services implements the external collaborators of the pipeline.
//
// # Resolver
//
// [Resolver] searches the video platform for candidates and turns a video id into a fetchable audio URL.
// [YTDLPResolver] implements it by driving yt-dlp through go-ytdlp and decoding its JSON output.
//
// # Extractors
//
// [Extractor] turns a playlist URL into a [Playlist] of tracks:
//   - [SpotifyExtractor] : Spotify Web API with client-credentials OAuth2
//   - [YouTubeExtractor] : flat playlist listing through yt-dlp
//
// [Extractors] dispatches a URL to the extractor registered for its platform.
//
// # Filtering
//
// [FilterCandidates] drops search results that are clearly not songs (shorts, reactions, full albums) before scoring.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrMissingCredentials] : Spotify client id or secret not configured
//   - [shared.ErrAPIRequest] : HTTP request or yt-dlp invocation failed
//   - [shared.ErrPlaylistNotFound] : playlist id not found
//   - [shared.ErrUnsupportedSource] : no extractor for the URL's platform
//   - [shared.ErrNoStreamURL] : yt-dlp returned no playable URL
package services
