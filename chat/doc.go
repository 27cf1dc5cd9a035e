// Package chat connects the moderation engine to Twitch chat.
//
// TwitchTransport wraps a go-twitch-irc client. Inbound IRC traffic is
// normalized into moderation events:
//   - PRIVMSG and JOIN count as activity; PRIVMSG text is also offered to the
//     command handler.
//   - PART and CLEARCHAT (timeouts and bans) count as departures.
//   - NAMES replies become presence snapshots.
//   - USERSTATE carries the bot's own badges; a change signals a mode change.
//   - NOTICE is reported as a transport error.
//
// Twitch has no WHOIS, so rank queries are answered from the badges last seen
// for each user: broadcaster maps to the owner marker "~" and moderator to the
// operator marker "@". Twitch has no KICK either; a removal is a short timeout
// issued through the Helix moderation API with the bot's user token, which
// therefore needs the moderator:manage:banned_users scope besides chat:read
// and chat:edit.
package chat
