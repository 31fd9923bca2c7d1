package modstage

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort      = "A mod collection manager for Linux"
	MsgRootLong       = "modstage installs curated mod collections into a staging directory,\nresolves their load order, and deploys them into the game via symlinks\nor copies - reversibly, with every placed file recorded."
	MsgSyncShort      = "Install a collection into the staging directory"
	MsgUpdateShort    = "Update the staging directory to the latest revision"
	MsgDeployShort    = "Deploy staged mods into the game directory"
	MsgUndeployShort  = "Remove every deployed file from the game directory"
	MsgLoadOrderShort = "Regenerate load-order.txt and plugins.txt"
	MsgStatusShort    = "Show the staging directory's collection status"
	MsgAddShort       = "Add a single mod outside the collection"
	MsgAddLocalShort  = "Register mod files you staged by hand"
	MsgFilesShort     = "List a mod's downloadable files"
	MsgTrackShort     = "Sync installed mods with your tracking centre"
	MsgServeShort     = "Run the local web dashboard"
	MsgGenConfigShort = "Write a starter config file"
	MsgTopicsShort    = "Display available documentation topics"
	MsgTopicsLong     = "Display a list of all available help topics that provide additional documentation beyond command help."

	// Status messages
	MsgDryRunNotice   = "\nDRY RUN MODE - No changes were made"
	MsgSyncedFormat   = "\nSynced %q revision %d: %d installed, %d updated, %d up to date\n"
	MsgFailedFormat   = "%d mod(s) failed; see diagnostics below\n"
	MsgDeployedFormat = "Deployed %d file(s) to %s (%d skipped)\n"
	MsgUndeployFormat = "Removed %d deployed file(s)\n"
	MsgOrderFormat    = "Wrote %s\n"
	MsgAddedFormat    = "Added %s (%s) - %d file(s) staged\n"
	MsgAddLocalFormat = "Registered %q as local mod %d\n"
	MsgDiagnostic     = "  ! [%s] %s\n"
	MsgTrackedFormat  = "Tracked %d mod(s), %d already tracked\n"
	MsgConfigWritten  = "Wrote starter config to %s\n"

	// Error messages
	MsgErrConfig  = "failed to load configuration: %w"
	MsgErrAPIKey  = "no API key configured; set NEXUS_API_KEY or api_key in the config file"
	MsgErrStaging = "failed to resolve staging directory: %w"
)
